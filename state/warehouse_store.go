package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
)

// WarehouseStore keeps marks in the _pipeline_state table of a dataset.
type WarehouseStore struct {
	log     logger.Logger
	exec    shared.Execer
	dialect shared.Dialect
	dataset string
}

func NewWarehouseStore(log logger.Logger, db shared.Connector, dataset string) *WarehouseStore {
	return &WarehouseStore{log: log, exec: db, dialect: db.GetDialect(), dataset: dataset}
}

// Ensure creates the state table if it is missing.
func (w *WarehouseStore) Ensure(ctx context.Context) error {
	return rdbms.EnsureTable(ctx, w.log, w.exec, w.dialect, w.dataset, c.TablePipelineState, rdbms.PipelineStateColumns)
}

// InTx returns a store that reads and writes using exec, typically an open transaction.
func (w *WarehouseStore) InTx(exec shared.Execer) Store {
	cp := *w
	cp.exec = exec
	return &cp
}

func (w *WarehouseStore) where() string {
	q := w.dialect.QuoteIdentifier
	p := w.dialect.Placeholder
	return fmt.Sprintf("%v = %v and %v = %v and %v = %v",
		q("pipeline_name"), p(1), q("table_name"), p(2), q("cursor_column"), p(3))
}

func (w *WarehouseStore) Get(ctx context.Context, key Key) (Mark, bool, error) {
	q := w.dialect.QuoteIdentifier
	sqlText := fmt.Sprintf("select %v, %v from %v where %v",
		q("cursor_value"), q("updated_at"), w.dialect.QualifiedTable(w.dataset, c.TablePipelineState), w.where())
	recs, err := rdbms.QueryRecords(ctx, w.log, w.exec, sqlText, key.Pipeline, key.Table, key.Column)
	if err != nil {
		return Mark{}, false, errors.Wrapf(err, "error reading state for %v", key)
	}
	if len(recs) == 0 {
		return Mark{}, false, nil
	}
	m := Mark{Value: fmt.Sprint(recs[0].GetData("cursor_value"))}
	if t, ok := recs[0].GetData("updated_at").(time.Time); ok {
		m.UpdatedAt = t
	}
	return m, true, nil
}

// Set replaces the mark for key with a delete and insert.
func (w *WarehouseStore) Set(ctx context.Context, key Key, value string) error {
	table := w.dialect.QualifiedTable(w.dataset, c.TablePipelineState)
	if _, err := w.exec.ExecContext(ctx, fmt.Sprintf("delete from %v where %v", table, w.where()),
		key.Pipeline, key.Table, key.Column); err != nil {
		return errors.Wrapf(err, "error clearing state for %v", key)
	}
	ins := make([]string, len(rdbms.PipelineStateColumns))
	cols := make([]string, len(rdbms.PipelineStateColumns))
	for i, col := range rdbms.PipelineStateColumns {
		cols[i] = w.dialect.QuoteIdentifier(col.Name)
		ins[i] = w.dialect.Placeholder(i + 1)
	}
	sqlText := fmt.Sprintf("insert into %v (%v) values (%v)", table, strings.Join(cols, ", "), strings.Join(ins, ", "))
	if _, err := w.exec.ExecContext(ctx, sqlText, key.Pipeline, key.Table, key.Column, value, time.Now().UTC()); err != nil {
		return errors.Wrapf(err, "error saving state for %v", key)
	}
	w.log.Debug("saved high-water mark ", key, " = ", value)
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (w *WarehouseStore) Close() error { return nil }
