package rdbms

import (
	"fmt"

	_ "github.com/lib/pq"
	"github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
)

type postgresDialect struct {
	baseDialect
}

func NewPostgresDialect() shared.Dialect {
	return postgresDialect{baseDialect{
		name: constants.ConnectionTypePostgres,
		types: map[schema.Kind]string{
			schema.KindInt:       "BIGINT",
			schema.KindFloat:     "DOUBLE PRECISION",
			schema.KindString:    "TEXT",
			schema.KindBool:      "BOOLEAN",
			schema.KindDate:      "DATE",
			schema.KindTimestamp: "TIMESTAMPTZ",
		},
	}}
}

func (d postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d postgresDialect) MaxBindVariables() int { return 65535 }

func (d postgresDialect) CreateTableSql(schemaName, table string, cols []shared.ColumnDef) []string {
	return []string{fmt.Sprintf("create table if not exists %v (%v)", d.QualifiedTable(schemaName, table), columnList(d, cols))}
}

func (d postgresDialect) RelationKindSql(schemaName, name string) (string, []interface{}) {
	return informationSchemaKindSql(d.Placeholder), []interface{}{schemaName, name}
}

// MaterializeSql drops with cascade; dependent views are rebuilt by the models that follow in dependency order.
func (d postgresDialect) MaterializeSql(schemaName, name, materialized, existingKind, body string) []string {
	qualified := d.QualifiedTable(schemaName, name)
	stmts := dropSql(qualified, existingKind, " cascade")
	if materialized == RelationTable {
		return append(stmts, fmt.Sprintf("create table %v as %v", qualified, body))
	}
	return append(stmts, fmt.Sprintf("create view %v as %v", qualified, body))
}
