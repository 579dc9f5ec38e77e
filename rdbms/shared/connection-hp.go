package shared

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
)

// HpConnection is a wrapper around Go native sql.DB.
// It adds the Dialect and DmlGenerator for use in components that output records to a database.
type HpConnection struct {
	DbSql   *sql.DB
	Dml     DmlGenerator
	Dialect Dialect
	DbType  string
}

// Connector:

func (c *HpConnection) BeginTx(ctx context.Context) (Transacter, error) {
	if c.DbSql == nil {
		return nil, errors.New("HpConnection was not configured correctly: DbSql is missing")
	}
	tx, err := c.DbSql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &HpTx{txSql: tx, dialect: c.Dialect}, nil
}

func (c *HpConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.DbSql.ExecContext(ctx, query, bindValues(c.Dialect, args)...)
}

func (c *HpConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (*HpRows, error) {
	r, err := c.DbSql.QueryContext(ctx, query, bindValues(c.Dialect, args)...)
	if err != nil {
		return nil, err
	}
	return &HpRows{rowsSql: r}, nil
}

func (c *HpConnection) Close() {
	if c.DbSql != nil {
		_ = c.DbSql.Close()
	}
}

func (c *HpConnection) GetDmlGenerator() DmlGenerator {
	return c.Dml
}

func (c *HpConnection) GetDialect() Dialect {
	return c.Dialect
}

func (c *HpConnection) GetType() string {
	return c.DbType
}

// Transacter:

type HpTx struct {
	txSql   *sql.Tx
	dialect Dialect
}

func (t *HpTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.txSql.ExecContext(ctx, query, bindValues(t.dialect, args)...)
}

func (t *HpTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*HpRows, error) {
	r, err := t.txSql.QueryContext(ctx, query, bindValues(t.dialect, args)...)
	if err != nil {
		return nil, err
	}
	return &HpRows{rowsSql: r}, nil
}

func (t *HpTx) Commit() error {
	return t.txSql.Commit()
}

func (t *HpTx) Rollback() error {
	return t.txSql.Rollback()
}

func bindValues(d Dialect, args []interface{}) []interface{} {
	if d == nil {
		return args
	}
	retval := make([]interface{}, len(args))
	for i, v := range args {
		retval[i] = d.BindValue(v)
	}
	return retval
}

// Rows:

type HpRows struct {
	rowsSql *sql.Rows
}

func (r *HpRows) Close() error {
	return r.rowsSql.Close()
}

func (r *HpRows) Columns() ([]string, error) {
	return r.rowsSql.Columns()
}

func (r *HpRows) ColumnTypes() ([]*HpColumnType, error) {
	c, err := r.rowsSql.ColumnTypes()          // get the specific column types.
	x := make([]*HpColumnType, len(c), len(c)) // make a generic slice of *HpColumnType.
	for i, v := range c {                      // for each specific column type...
		x[i] = &HpColumnType{colTypeSql: v}
	}
	return x, err
}

func (r *HpRows) Err() error {
	return r.rowsSql.Err()
}

func (r *HpRows) Next() bool {
	return r.rowsSql.Next()
}

func (r *HpRows) Scan(dest ...interface{}) error {
	return r.rowsSql.Scan(dest...)
}

// ColumnType:

type HpColumnType struct {
	colTypeSql *sql.ColumnType
}

func (c *HpColumnType) DatabaseTypeName() string {
	return c.colTypeSql.DatabaseTypeName()
}

func (c *HpColumnType) Name() string {
	return c.colTypeSql.Name()
}

func (c *HpColumnType) ScanType() reflect.Type {
	return c.colTypeSql.ScanType()
}
