package parser

import (
	"fmt"
	"sort"
)

// Entities is what one migration's SQL creates and what it depends on.
// Identifiers are lower-case "table" or "table.column".
type Entities struct {
	Creates    []string
	References []string
}

// Extractor turns a migration's SQL text into its entity sets. It is a
// dependency oracle, not a validator: anything it cannot recognise simply
// produces no entity.
type Extractor interface {
	Extract(sql string) (Entities, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(sql string) (Entities, error)

// Extract calls f(sql).
func (f ExtractorFunc) Extract(sql string) (Entities, error) {
	return f(sql)
}

// NewExtractor returns the extractor registered under name ("regex" or "ast").
func NewExtractor(name string) (Extractor, error) {
	switch name {
	case "regex", "":
		return RegexExtractor{}, nil
	case "ast":
		return ASTExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}
}

// entitySet collects identifiers and emits them sorted and de-duplicated.
type entitySet map[string]struct{}

func (s entitySet) add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

func (s entitySet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}

func qualify(table, column string) string {
	if column == "" {
		return table
	}

	return table + "." + column
}
