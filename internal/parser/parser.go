package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Statements parses a migration file with the Postgres grammar and returns
// its top-level statements in file order. A blank file has none.
func Statements(sql string) ([]*pg_query.Node, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, nil
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	stmts := make([]*pg_query.Node, 0, len(tree.GetStmts()))

	for _, raw := range tree.GetStmts() {
		if raw.GetStmt() != nil {
			stmts = append(stmts, raw.GetStmt())
		}
	}

	return stmts, nil
}
