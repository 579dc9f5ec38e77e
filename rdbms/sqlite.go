package rdbms

import (
	"fmt"
	"time"

	"github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
	_ "modernc.org/sqlite"
)

const sqliteTimestampFormat = "2006-01-02T15:04:05.000000Z"

// sqliteDialect has no schemas so datasets become a table name prefix: dataset__table.
type sqliteDialect struct {
	baseDialect
}

func NewSqliteDialect() shared.Dialect {
	return sqliteDialect{baseDialect{
		name: constants.ConnectionTypeSqlite,
		types: map[schema.Kind]string{
			schema.KindInt:       "INTEGER",
			schema.KindFloat:     "REAL",
			schema.KindString:    "TEXT",
			schema.KindBool:      "INTEGER",
			schema.KindDate:      "TEXT",
			schema.KindTimestamp: "TEXT",
		},
	}}
}

func (d sqliteDialect) QualifiedTable(schemaName, table string) string {
	return d.QuoteIdentifier(sqliteTableName(schemaName, table))
}

func sqliteTableName(schemaName, table string) string {
	if schemaName == "" {
		return table
	}
	return schemaName + "__" + table
}

func (d sqliteDialect) MaxBindVariables() int { return 32766 }

// BindValue stores times as fixed width text so they sort and compare as strings.
// Midnight UTC values are dates and keep the YYYY-MM-DD form.
func (d sqliteDialect) BindValue(v interface{}) interface{} {
	switch x := v.(type) {
	case time.Time:
		x = x.UTC()
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(constants.TimeFormatDate)
		}
		return x.Format(sqliteTimestampFormat)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (d sqliteDialect) CreateSchemaSql(string) []string { return nil }

func (d sqliteDialect) CreateTableSql(schemaName, table string, cols []shared.ColumnDef) []string {
	return []string{fmt.Sprintf("create table if not exists %v (%v)", d.QualifiedTable(schemaName, table), columnList(d, cols))}
}

func (d sqliteDialect) RelationKindSql(schemaName, name string) (string, []interface{}) {
	return "select upper(type) from sqlite_master where name = ?", []interface{}{sqliteTableName(schemaName, name)}
}

func (d sqliteDialect) MaterializeSql(schemaName, name, materialized, existingKind, body string) []string {
	qualified := d.QualifiedTable(schemaName, name)
	stmts := dropSql(qualified, existingKind, "")
	if materialized == RelationTable {
		return append(stmts, fmt.Sprintf("create table %v as %v", qualified, body))
	}
	return append(stmts, fmt.Sprintf("create view %v as %v", qualified, body))
}
