package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the suffix a file needs to be picked up as a migration.
const Extension = ".sql"

// LoadFromDir reads every *.sql file directly inside dir and returns them
// sorted lexically by filename. Subdirectories and other files are ignored.
func LoadFromDir(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading migrations directory %s: %w", ErrLoad, dir, err)
	}

	var migrations []Migration

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}

		m, err := readMigration(dir, entry.Name())
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, m)
	}

	return Sort(migrations), nil
}

func readMigration(dir, name string) (Migration, error) {
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		return Migration{}, fmt.Errorf("%w: reading migration file %s: %w", ErrLoad, path, err)
	}

	content := strings.TrimSpace(string(data))

	return Migration{
		Filename: name,
		FilePath: path,
		Content:  content,
		Checksum: ComputeChecksum(content),
	}, nil
}
