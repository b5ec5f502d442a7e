package ledger

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultTable is the ledger table used when none is configured.
const DefaultTable = "schema_migrations"

// createTableSQL holds the columns every ledger has had from the start.
// Later columns are added by addColumnSQL so older ledgers catch up in place.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id           SERIAL PRIMARY KEY,
    filename     TEXT NOT NULL UNIQUE,
    checksum     TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'completed',
    executed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

//nolint:gochecknoglobals // fixed column list, rendered per table
var addColumnSQL = []string{
	`ALTER TABLE %s ADD COLUMN IF NOT EXISTS execution_time_ms INTEGER`,
	`ALTER TABLE %s ADD COLUMN IF NOT EXISTS error_message TEXT`,
	`ALTER TABLE %s ADD COLUMN IF NOT EXISTS recovery_attempts INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE %s ADD COLUMN IF NOT EXISTS metadata JSONB`,
}

// quoteTable sanitizes a possibly schema-qualified table name.
func quoteTable(table string) string {
	if table == "" {
		table = DefaultTable
	}

	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

// schemaStatements returns the idempotent DDL for the given quoted table.
func schemaStatements(quoted string) []string {
	stmts := make([]string, 0, 1+len(addColumnSQL))
	stmts = append(stmts, fmt.Sprintf(createTableSQL, quoted))

	for _, s := range addColumnSQL {
		stmts = append(stmts, fmt.Sprintf(s, quoted))
	}

	return stmts
}
