package rdbms

import (
	"context"

	"github.com/pkg/errors"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
)

// SystemColumns are added to every entity table after the entity fields.
var SystemColumns = []shared.ColumnDef{
	{Name: c.ColumnLoadId, Kind: schema.KindString},
	{Name: c.ColumnRowHash, Kind: schema.KindString},
	{Name: c.ColumnValidFrom, Kind: schema.KindTimestamp},
	{Name: c.ColumnValidTo, Kind: schema.KindTimestamp, Nullable: true},
}

// LoadsColumns are the columns of the _loads bookkeeping table.
var LoadsColumns = []shared.ColumnDef{
	{Name: "load_id", Kind: schema.KindString},
	{Name: "pipeline_name", Kind: schema.KindString},
	{Name: "dataset", Kind: schema.KindString},
	{Name: "status", Kind: schema.KindString},
	{Name: "started_at", Kind: schema.KindTimestamp},
	{Name: "finished_at", Kind: schema.KindTimestamp},
}

// PipelineStateColumns are the columns of the _pipeline_state table holding incremental cursors.
var PipelineStateColumns = []shared.ColumnDef{
	{Name: "pipeline_name", Kind: schema.KindString},
	{Name: "table_name", Kind: schema.KindString},
	{Name: "cursor_column", Kind: schema.KindString},
	{Name: "cursor_value", Kind: schema.KindString},
	{Name: "updated_at", Kind: schema.KindTimestamp},
}

// EntityColumns returns the column definitions of the table for def: entity fields then SystemColumns.
func EntityColumns(def *schema.Definition) []shared.ColumnDef {
	retval := make([]shared.ColumnDef, 0, len(def.Fields)+len(SystemColumns))
	for _, f := range def.Fields {
		retval = append(retval, shared.ColumnDef{Name: f.Name, Kind: f.Kind, Nullable: f.Optional})
	}
	return append(retval, SystemColumns...)
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []shared.ColumnDef) []string {
	retval := make([]string, len(cols))
	for i, col := range cols {
		retval[i] = col.Name
	}
	return retval
}

// EnsureDataset creates the schema if it does not exist.
func EnsureDataset(ctx context.Context, log logger.Logger, db shared.Execer, d shared.Dialect, dataset string) error {
	for _, stmt := range d.CreateSchemaSql(dataset) {
		log.Debug("executing: ", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "error creating dataset %v", dataset)
		}
	}
	return nil
}

// EnsureTable creates dataset.table with cols if it does not exist.
func EnsureTable(ctx context.Context, log logger.Logger, db shared.Execer, d shared.Dialect, dataset, table string, cols []shared.ColumnDef) error {
	for _, stmt := range d.CreateTableSql(dataset, table, cols) {
		log.Debug("executing: ", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "error creating table %v", NewSchemaTable(dataset, table))
		}
	}
	return nil
}

// RelationKind returns RelationTable, RelationView or "" if dataset.name does not exist.
func RelationKind(ctx context.Context, log logger.Logger, db shared.Execer, d shared.Dialect, dataset, name string) (string, error) {
	q, args := d.RelationKindSql(dataset, name)
	v, _, err := QueryString(ctx, log, db, q, args...)
	if err != nil {
		return "", errors.Wrapf(err, "error checking object type of %v", NewSchemaTable(dataset, name))
	}
	return NormaliseRelationKind(v), nil
}
