package rdbms

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
)

type sqlServerDialect struct {
	baseDialect
}

func NewSqlServerDialect() shared.Dialect {
	return sqlServerDialect{baseDialect{
		name: constants.ConnectionTypeSqlServer,
		types: map[schema.Kind]string{
			schema.KindInt:       "BIGINT",
			schema.KindFloat:     "FLOAT",
			schema.KindString:    "NVARCHAR(MAX)",
			schema.KindBool:      "BIT",
			schema.KindDate:      "DATE",
			schema.KindTimestamp: "DATETIME2",
		},
	}}
}

func (d sqlServerDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// MaxBindVariables stays below the 2100 parameter limit of a SQL Server RPC call.
func (d sqlServerDialect) MaxBindVariables() int { return 2000 }

// BindValue stores times in UTC since DATETIME2 has no zone.
func (d sqlServerDialect) BindValue(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func quoteLiteral(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d sqlServerDialect) CreateSchemaSql(schemaName string) []string {
	return []string{fmt.Sprintf("if not exists (select 1 from sys.schemas where name = %v) exec(%v)",
		quoteLiteral(schemaName),
		quoteLiteral("create schema "+d.QuoteIdentifier(schemaName)))}
}

func (d sqlServerDialect) CreateTableSql(schemaName, table string, cols []shared.ColumnDef) []string {
	qualified := d.QualifiedTable(schemaName, table)
	return []string{fmt.Sprintf("if object_id(%v, N'U') is null create table %v (%v)",
		quoteLiteral(qualified), qualified, columnList(d, cols))}
}

func (d sqlServerDialect) RelationKindSql(schemaName, name string) (string, []interface{}) {
	return informationSchemaKindSql(d.Placeholder), []interface{}{schemaName, name}
}

// MaterializeSql issues CREATE VIEW on its own since it must start a batch.
func (d sqlServerDialect) MaterializeSql(schemaName, name, materialized, existingKind, body string) []string {
	qualified := d.QualifiedTable(schemaName, name)
	stmts := dropSql(qualified, existingKind, "")
	if materialized == RelationTable {
		return append(stmts, fmt.Sprintf("select * into %v from (%v) as src", qualified, body))
	}
	return append(stmts, fmt.Sprintf("create view %v as %v", qualified, body))
}
