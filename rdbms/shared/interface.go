package shared

import (
	"context"

	"github.com/relloyd/sunglass-etl/schema"
)

// Connector abstracts all access to Go SQL functionality.
type Connector interface {
	Execer
	BeginTx(ctx context.Context) (Transacter, error)
	Close()
	GetType() string
	GetDialect() Dialect
	GetDmlGenerator() DmlGenerator
}

// Execer is implemented by connections and transactions alike.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*HpRows, error)
}

type Transacter interface {
	Execer
	Commit() error
	Rollback() error
}

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// ColumnDef describes a table column for DDL generation.
type ColumnDef struct {
	Name     string
	Kind     schema.Kind
	Nullable bool
}

// Dialect hides the SQL differences between destination databases.
type Dialect interface {
	// Name returns the connection type, one of the constants.ConnectionType* values.
	Name() string
	// Placeholder returns the bind variable for the n-th (1-based) argument.
	Placeholder(n int) string
	QuoteIdentifier(name string) string
	// QualifiedTable returns the quoted schema and table name. Databases without schemas prefix the table instead.
	QualifiedTable(schemaName, table string) string
	ColumnType(k schema.Kind) string
	// MaxBindVariables is the most arguments one statement can take.
	MaxBindVariables() int
	// BindValue converts a canonical Go value into one the driver stores faithfully.
	BindValue(v interface{}) interface{}
	CreateSchemaSql(schemaName string) []string
	CreateTableSql(schemaName, table string, cols []ColumnDef) []string
	// RelationKindSql returns a query yielding one row with the object type of schemaName.name if it exists.
	RelationKindSql(schemaName, name string) (string, []interface{})
	// MaterializeSql returns the statements that (re)build name as a view or table from the select in body.
	// existingKind is "", "VIEW" or "TABLE".
	MaterializeSql(schemaName, name, materialized, existingKind, body string) []string
}

type DmlGenerator interface {
	NewInsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher
	NewUpdateGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtGenerator
}

// SqlStmtGenerator returns the SQL for a DML statement.
type SqlStmtGenerator interface {
	GetStatement() string
}

// SqlStmtTxtBatcher is used to combine DML statements that affect individual records into one statement, aiming
// to improve performance and reduce network round trips.
type SqlStmtTxtBatcher interface {
	SqlStmtGenerator
	InitBatch(batchSize int)                             // reset variables and preallocate slices for the given batch size.
	AddValuesToBatch(values []interface{}) (bool, error) // add values to SQL statement.
	GetValues() []interface{}                            // get all values added to the batch so they can be supplied as args to exec the SQL returned by getStatement().
	GetRowCount() int
}

type SqlResultHandler interface {
	HandleHeader(i []interface{}) error
	HandleRow(i []interface{}) error
}
