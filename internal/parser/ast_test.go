package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/depmigrate/internal/parser"
)

func TestASTExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sql      string
		wantCrt  []string
		wantRefs []string
	}{
		{
			name:    "every column is created regardless of type",
			sql:     "CREATE TABLE blobs (id serial PRIMARY KEY, payload bytea, tags jsonb);",
			wantCrt: []string{"blobs", "blobs.id", "blobs.payload", "blobs.tags"},
		},
		{
			name: "table and column level foreign keys",
			sql: `CREATE TABLE posts (
    id serial PRIMARY KEY,
    user_id integer REFERENCES users (id),
    editor_id integer,
    FOREIGN KEY (editor_id) REFERENCES editors (id)
);`,
			wantCrt:  []string{"posts", "posts.id", "posts.user_id", "posts.editor_id"},
			wantRefs: []string{"users.id", "editors.id"},
		},
		{
			name:     "foreign key to primary key references the table",
			sql:      "CREATE TABLE likes (post_id integer REFERENCES posts);",
			wantCrt:  []string{"likes", "likes.post_id"},
			wantRefs: []string{"posts"},
		},
		{
			name:     "index columns, expressions skipped",
			sql:      "CREATE INDEX idx_users ON users (email DESC, (lower(name)));",
			wantRefs: []string{"users.email"},
		},
		{
			name:     "alter table add column and constraint",
			sql:      "ALTER TABLE posts ADD COLUMN slug text; ALTER TABLE posts ADD CONSTRAINT fk_author FOREIGN KEY (author_id) REFERENCES authors (id);",
			wantCrt:  []string{"posts.slug"},
			wantRefs: []string{"authors.id"},
		},
		{
			name:    "quoted identifiers keep their case",
			sql:     `CREATE TABLE "Users" ("Email" text);`,
			wantCrt: []string{"Users", "Users.Email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parser.ASTExtractor{}.Extract(tt.sql)
			require.NoError(t, err)

			assert.ElementsMatch(t, tt.wantCrt, got.Creates)
			assert.ElementsMatch(t, tt.wantRefs, got.References)
		})
	}
}

func TestASTExtractor_invalidSQL_returnsParseError(t *testing.T) {
	t.Parallel()

	_, err := parser.ASTExtractor{}.Extract("CREATE TABLE (((")

	require.ErrorIs(t, err, parser.ErrParse)
}

func TestExtractors_agreeOnScenario(t *testing.T) {
	t.Parallel()

	sql := "CREATE TABLE users (id serial, email varchar); CREATE INDEX idx_users_email ON users (email);"

	fromRegex, err := parser.RegexExtractor{}.Extract(sql)
	require.NoError(t, err)

	fromAST, err := parser.ASTExtractor{}.Extract(sql)
	require.NoError(t, err)

	assert.Equal(t, fromRegex, fromAST)
}
