package parser

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ASTExtractor extracts entities from the real Postgres parse tree. Unlike
// RegexExtractor it sees every column regardless of type and handles
// quoted and schema-qualified names, but it rejects SQL the grammar does
// not accept.
type ASTExtractor struct{}

// Extract parses sql and walks CREATE TABLE, ALTER TABLE and CREATE INDEX
// statements.
func (ASTExtractor) Extract(sql string) (Entities, error) {
	stmts, err := Statements(sql)
	if err != nil {
		return Entities{}, err
	}

	creates := entitySet{}
	refs := entitySet{}

	for _, stmt := range stmts {
		switch node := stmt.Node.(type) {
		case *pg_query.Node_CreateStmt:
			collectCreateTable(node.CreateStmt, creates, refs)
		case *pg_query.Node_AlterTableStmt:
			collectAlterTable(node.AlterTableStmt, creates, refs)
		case *pg_query.Node_IndexStmt:
			collectIndex(node.IndexStmt, refs)
		}
	}

	return Entities{Creates: creates.sorted(), References: refs.sorted()}, nil
}

func collectCreateTable(stmt *pg_query.CreateStmt, creates, refs entitySet) {
	if stmt == nil || stmt.Relation == nil {
		return
	}

	table := stmt.Relation.Relname
	creates.add(table)

	for _, elt := range stmt.TableElts {
		switch n := elt.Node.(type) {
		case *pg_query.Node_ColumnDef:
			collectColumn(table, n.ColumnDef, creates, refs)
		case *pg_query.Node_Constraint:
			collectForeignKey(n.Constraint, refs)
		}
	}
}

func collectAlterTable(stmt *pg_query.AlterTableStmt, creates, refs entitySet) {
	if stmt == nil || stmt.Relation == nil {
		return
	}

	table := stmt.Relation.Relname

	for _, cmdNode := range stmt.Cmds {
		cmd, ok := cmdNode.Node.(*pg_query.Node_AlterTableCmd)
		if !ok || cmd.AlterTableCmd.Def == nil {
			continue
		}

		switch cmd.AlterTableCmd.Subtype { //nolint:exhaustive // only additive commands create entities
		case pg_query.AlterTableType_AT_AddColumn:
			if col, ok := cmd.AlterTableCmd.Def.Node.(*pg_query.Node_ColumnDef); ok {
				collectColumn(table, col.ColumnDef, creates, refs)
			}
		case pg_query.AlterTableType_AT_AddConstraint:
			if c, ok := cmd.AlterTableCmd.Def.Node.(*pg_query.Node_Constraint); ok {
				collectForeignKey(c.Constraint, refs)
			}
		}
	}
}

func collectColumn(table string, col *pg_query.ColumnDef, creates, refs entitySet) {
	if col == nil || col.Colname == "" {
		return
	}

	creates.add(qualify(table, col.Colname))

	for _, c := range col.Constraints {
		if cn, ok := c.Node.(*pg_query.Node_Constraint); ok {
			collectForeignKey(cn.Constraint, refs)
		}
	}
}

// collectForeignKey records the referenced columns, or the bare table when
// the constraint relies on the referenced table's primary key.
func collectForeignKey(c *pg_query.Constraint, refs entitySet) {
	if c == nil || c.Contype != pg_query.ConstrType_CONSTR_FOREIGN || c.Pktable == nil {
		return
	}

	table := c.Pktable.Relname
	cols := stringItems(c.PkAttrs)

	if len(cols) == 0 {
		refs.add(table)

		return
	}

	for _, col := range cols {
		refs.add(qualify(table, col))
	}
}

func collectIndex(stmt *pg_query.IndexStmt, refs entitySet) {
	if stmt == nil || stmt.Relation == nil {
		return
	}

	for _, p := range stmt.IndexParams {
		elem, ok := p.Node.(*pg_query.Node_IndexElem)
		if !ok || elem.IndexElem.Name == "" {
			continue // expression index
		}

		refs.add(qualify(stmt.Relation.Relname, elem.IndexElem.Name))
	}
}

func stringItems(nodes []*pg_query.Node) []string {
	var out []string

	for _, n := range nodes {
		if s, ok := n.Node.(*pg_query.Node_String_); ok {
			out = append(out, s.String_.Sval)
		}
	}

	return out
}
