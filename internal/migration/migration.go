package migration

import (
	"crypto/sha256"
	"encoding/hex"
)

// Migration is one SQL file as seen by a single run: its content and
// checksum from disk, the entities the extractor found in it, and the
// dependencies and position the resolver assigned. It is never persisted;
// the ledger's record for the same file is joined on Filename only.
type Migration struct {
	Filename string // "001_create_users.sql": identity and default order key
	FilePath string
	Content  string // trimmed file contents
	Checksum string // SHA-256 hex digest of Content

	Creates      []string // "table" or "table.column"
	References   []string
	Dependencies []string // filenames that must run first
	Order        int      // 1-based position in the resolved order, 0 until resolved
}

// ComputeChecksum returns the SHA-256 hex digest of the given SQL string.
func ComputeChecksum(sql string) string {
	h := sha256.Sum256([]byte(sql))

	return hex.EncodeToString(h[:])
}

// ShortChecksum returns the first 12 hex characters of a checksum for display.
func ShortChecksum(sum string) string {
	const n = 12
	if len(sum) <= n {
		return sum
	}

	return sum[:n]
}
