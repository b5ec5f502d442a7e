package parser

import (
	"regexp"
	"strings"
)

//nolint:gochecknoglobals // compiled once, used by RegexExtractor
var (
	// Whichever of a literal, a line comment or a block comment opens
	// first consumes the text up to its own terminator.
	noisePattern = regexp.MustCompile(`(?s)'(?:[^']|'')*'|--[^\n]*|/\*.*?\*/`)

	createTablePattern = regexp.MustCompile(
		`create\s+table\s+(?:if\s+not\s+exists\s+)?(\w+)\s*\(`,
	)
	columnPattern = regexp.MustCompile(
		`(?:^|,)\s*(\w+)\s+(varchar|text|integer|serial|boolean|timestamp|numeric|decimal)\b`,
	)
	addColumnPattern = regexp.MustCompile(
		`alter\s+table\s+(?:if\s+exists\s+)?(?:only\s+)?(\w+)\s+add\s+(?:column\s+)?(?:if\s+not\s+exists\s+)?(\w+)\s+(varchar|text|integer|serial|boolean|timestamp|numeric|decimal)\b`,
	)
	indexPattern = regexp.MustCompile(
		`create\s+(?:unique\s+)?index\s+(?:concurrently\s+)?(?:if\s+not\s+exists\s+)?(\w+)\s+on\s+(?:only\s+)?(\w+)\s*(?:using\s+\w+\s*)?\(`,
	)
	referencesPattern = regexp.MustCompile(
		`references\s+(\w+)\s*\(\s*(\w+)\s*\)`,
	)
	concurrentIndexPattern = regexp.MustCompile(
		`create\s+(?:unique\s+)?index\s+concurrently\b`,
	)
	identPattern = regexp.MustCompile(`^\w+$`)
)

// RegexExtractor is the default best-effort extractor. It recognises
// CREATE TABLE bodies, ALTER TABLE ... ADD COLUMN, CREATE INDEX column
// lists, and REFERENCES clauses (both FOREIGN KEY and inline column form).
// Quoted or schema-qualified identifiers are not recognised, and
// dollar-quoted bodies are scanned as ordinary SQL.
type RegexExtractor struct{}

// Extract never fails; unrecognised SQL yields empty sets.
func (RegexExtractor) Extract(sql string) (Entities, error) {
	text := Normalize(sql)
	creates := entitySet{}
	refs := entitySet{}

	for _, loc := range createTablePattern.FindAllStringSubmatchIndex(text, -1) {
		table := text[loc[2]:loc[3]]
		creates.add(table)

		body, ok := balancedBody(text, loc[1]-1)
		if !ok {
			continue
		}

		for _, m := range columnPattern.FindAllStringSubmatch(body, -1) {
			creates.add(qualify(table, m[1]))
		}
	}

	for _, m := range addColumnPattern.FindAllStringSubmatch(text, -1) {
		creates.add(qualify(m[1], m[2]))
	}

	for _, loc := range indexPattern.FindAllStringSubmatchIndex(text, -1) {
		table := text[loc[4]:loc[5]]

		body, ok := balancedBody(text, loc[1]-1)
		if !ok {
			continue
		}

		for _, col := range strings.Split(body, ",") {
			fields := strings.Fields(col)
			if len(fields) == 0 || !identPattern.MatchString(fields[0]) {
				continue // expression index or empty entry
			}

			refs.add(qualify(table, fields[0]))
		}
	}

	for _, m := range referencesPattern.FindAllStringSubmatch(text, -1) {
		refs.add(qualify(m[1], m[2]))
	}

	return Entities{Creates: creates.sorted(), References: refs.sorted()}, nil
}

// Normalize strips -- and /* */ comments, empties single-quoted string
// literals, and lower-cases the text. Comment markers inside a literal, or
// inside the other kind of comment, are plain text.
func Normalize(sql string) string {
	text := noisePattern.ReplaceAllStringFunc(sql, func(m string) string {
		switch {
		case strings.HasPrefix(m, "'"):
			return "''"
		case strings.HasPrefix(m, "--"):
			return ""
		default:
			return " "
		}
	})

	return strings.ToLower(text)
}

// HasConcurrentIndex reports whether the SQL contains CREATE INDEX
// CONCURRENTLY, which Postgres refuses to run inside a transaction block.
func HasConcurrentIndex(sql string) bool {
	return concurrentIndexPattern.MatchString(Normalize(sql))
}

// balancedBody returns the text between the '(' at open and its matching ')'.
func balancedBody(text string, open int) (string, bool) {
	if open < 0 || open >= len(text) || text[open] != '(' {
		return "", false
	}

	depth := 0

	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return text[open+1 : i], true
			}
		}
	}

	return "", false
}
