package rdbms

import (
	"fmt"
	"strings"

	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
)

const (
	RelationView  = "VIEW"
	RelationTable = "TABLE"
)

// baseDialect holds the ANSI behaviour shared by the destinations. Each destination embeds it and overrides
// what differs.
type baseDialect struct {
	name  string
	types map[schema.Kind]string
}

func (d baseDialect) Name() string { return d.name }

func (d baseDialect) Placeholder(n int) string { return "?" }

func (d baseDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d baseDialect) QualifiedTable(schemaName, table string) string {
	if schemaName == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schemaName) + "." + d.QuoteIdentifier(table)
}

func (d baseDialect) ColumnType(k schema.Kind) string {
	if t, ok := d.types[k]; ok {
		return t
	}
	panic(fmt.Sprintf("no %v column type for kind %v", d.name, k))
}

func (d baseDialect) MaxBindVariables() int { return 10000 }

func (d baseDialect) BindValue(v interface{}) interface{} { return v }

func (d baseDialect) CreateSchemaSql(schemaName string) []string {
	return []string{fmt.Sprintf("create schema if not exists %v", d.QuoteIdentifier(schemaName))}
}

// columnList renders the column definitions of a CREATE TABLE using the ColumnType of dialect t.
func columnList(t shared.Dialect, cols []shared.ColumnDef) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		nullable := " not null"
		if c.Nullable {
			nullable = ""
		}
		defs[i] = fmt.Sprintf("%v %v%v", t.QuoteIdentifier(c.Name), t.ColumnType(c.Kind), nullable)
	}
	return strings.Join(defs, ", ")
}

func informationSchemaKindSql(placeholder func(int) string) string {
	return fmt.Sprintf("select table_type from information_schema.tables where table_schema = %v and table_name = %v",
		placeholder(1), placeholder(2))
}

// NormaliseRelationKind maps the object type returned by RelationKindSql onto RelationView or RelationTable.
func NormaliseRelationKind(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "VIEW"):
		return RelationView
	}
	return RelationTable
}

func dropSql(qualified, existingKind, suffix string) []string {
	switch existingKind {
	case RelationView:
		return []string{fmt.Sprintf("drop view if exists %v%v", qualified, suffix)}
	case RelationTable:
		return []string{fmt.Sprintf("drop table if exists %v%v", qualified, suffix)}
	}
	return nil
}
