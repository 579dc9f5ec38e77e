package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/sunglass-etl/components"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/helper"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
	"github.com/relloyd/sunglass-etl/state"
	"github.com/relloyd/sunglass-etl/stream"
)

// tableLoader holds the state of one table load.
type tableLoader struct {
	*Runner
	job      *Job
	dataset  string
	store    state.Store
	loadID   string
	loadTime time.Time
	result   *TableLoad
}

func (l *tableLoader) step(s string) string {
	return fmt.Sprintf("%v %v", l.job.Table(), s)
}

func (l *tableLoader) qualifiedTable() string {
	return l.dialect.QualifiedTable(l.dataset, l.job.Table())
}

func (l *tableLoader) openPredicate() string {
	return fmt.Sprintf("%v is null", l.dialect.QuoteIdentifier(c.ColumnValidTo))
}

// extract starts the job's extraction and adds the row hash to every record.
func (l *tableLoader) extract(ctx context.Context, sink *components.ErrorSink) (*Extraction, chan stream.Record, error) {
	ext, err := l.job.Records(ctx, l.Log, l.Opener, l.Stats)
	if err != nil {
		return nil, nil, err
	}
	hashed := components.NewRowHasher(ctx, &components.RowHasherConfig{
		Log:            l.Log,
		Name:           l.step("hash rows"),
		InputChan:      ext.Rows,
		HashFields:     l.job.Definition().FieldNames(),
		PanicHandlerFn: sink.PanicHandler(l.step("hash rows")),
	})
	return ext, hashed, nil
}

// syncConfig returns the TableSync settings shared by all strategies: insert every entity and system column.
func (l *tableLoader) syncConfig(exec shared.Execer, input chan stream.Record, sink *components.ErrorSink) *components.TableSyncConfig {
	return &components.TableSyncConfig{
		Log:          l.Log,
		Name:         l.step("table sync"),
		InputChan:    input,
		OutputDb:     exec,
		Dml:          l.Db.GetDmlGenerator(),
		Dialect:      l.dialect,
		OutputSchema: l.dataset,
		OutputTable:  l.job.Table(),
		InsertCols:   rdbms.ColumnNames(rdbms.EntityColumns(l.job.Definition())),
		ConstantValues: map[string]interface{}{
			c.ColumnLoadId:    l.loadID,
			c.ColumnValidFrom: l.loadTime,
			c.ColumnValidTo:   nil,
		},
		StepWatcher:    l.Stats.AddStepWatcher(l.step("table sync")),
		ErrorSink:      sink,
		PanicHandlerFn: sink.PanicHandler(l.step("table sync")),
	}
}

// finish collects the outcome of the extraction and the load components, preferring the load error.
func (l *tableLoader) finish(ext *Extraction, sink *components.ErrorSink) error {
	extErr := <-ext.Err
	l.result.Files = ext.Files()
	l.result.RowsRead = ext.RowsRead()
	if err := sink.Err(); err != nil {
		return err
	}
	return extErr
}

func rollback(tx shared.Transacter, committed *bool) {
	if !*committed {
		_ = tx.Rollback()
	}
}

// replace deletes every row of the table and inserts the extraction in one transaction.
func (l *tableLoader) replace(ctx context.Context) error {
	ctx, sink := components.NewErrorSink(ctx)
	defer sink.Close()
	ext, hashed, err := l.extract(ctx, sink)
	if err != nil {
		return err
	}
	tx, err := l.Db.BeginTx(ctx)
	if err != nil {
		sink.Raise(err)
		_ = l.finish(ext, sink)
		return errors.Wrap(err, "error starting transaction")
	}
	committed := false
	defer rollback(tx, &committed)
	if _, err = tx.ExecContext(ctx, "delete from "+l.qualifiedTable()); err != nil {
		sink.Raise(err)
		_ = l.finish(ext, sink)
		return errors.Wrapf(err, "error deleting from %v", l.qualifiedTable())
	}
	out, counts, err := components.NewTableSync(ctx, l.syncConfig(tx, hashed, sink))
	if err != nil {
		sink.Raise(err)
		_ = l.finish(ext, sink)
		return err
	}
	components.Drain(ctx, out)
	if err = l.finish(ext, sink); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing")
	}
	committed = true
	l.result.RowsInserted = counts.Inserted
	return nil
}

// append inserts the extraction. With an incremental column only rows beyond the stored high-water mark are
// loaded and the new mark is saved.
func (l *tableLoader) append(ctx context.Context) error {
	cursor := l.job.IncrementalColumn()
	var (
		bound    interface{}
		key      state.Key
		cursorFd schema.Field
	)
	if cursor != "" {
		cursorFd, _ = l.job.Definition().Field(cursor)
		key = state.Key{Pipeline: l.PipelineName, Table: l.job.Table(), Column: cursor}
		mark, found, err := l.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if found {
			if bound, err = schema.ParseValue(cursorFd.Kind, mark.Value); err != nil {
				return errors.Wrapf(err, "invalid high-water mark for %v", key)
			}
			l.Log.Info(l.job.Table(), " loading rows with ", cursor, " > ", mark.Value)
		}
	}
	ctx, sink := components.NewErrorSink(ctx)
	defer sink.Close()
	ext, rows, err := l.extract(ctx, sink)
	if err != nil {
		return err
	}
	if cursor != "" {
		rows, err = components.NewFilterRows(ctx, &components.FilterRowsConfig{
			Log:            l.Log,
			Name:           l.step("cursor filter"),
			InputChan:      rows,
			FilterType:     components.FilterRowsGreaterThan,
			FilterMetadata: components.FilterMetadata(cursor),
			FilterValue:    bound,
			ErrorSink:      sink,
			PanicHandlerFn: sink.PanicHandler(l.step("cursor filter")),
		})
		if err != nil {
			sink.Raise(err)
			_ = l.finish(ext, sink)
			return err
		}
	}
	tx, err := l.Db.BeginTx(ctx)
	if err != nil {
		sink.Raise(err)
		_ = l.finish(ext, sink)
		return errors.Wrap(err, "error starting transaction")
	}
	committed := false
	defer rollback(tx, &committed)
	out, counts, err := components.NewTableSync(ctx, l.syncConfig(tx, rows, sink))
	if err != nil {
		sink.Raise(err)
		_ = l.finish(ext, sink)
		return err
	}
	var maxRecs []stream.Record
	if cursor != "" {
		maxChan, err := components.NewFilterRows(ctx, &components.FilterRowsConfig{
			Log:            l.Log,
			Name:           l.step("cursor max"),
			InputChan:      out,
			FilterType:     components.FilterRowsGetMax,
			FilterMetadata: components.FilterMetadata(cursor),
			ErrorSink:      sink,
			PanicHandlerFn: sink.PanicHandler(l.step("cursor max")),
		})
		if err != nil {
			sink.Raise(err)
			_ = l.finish(ext, sink)
			return err
		}
		maxRecs = components.Drain(ctx, maxChan)
	} else {
		components.Drain(ctx, out)
	}
	if err = l.finish(ext, sink); err != nil {
		return err
	}
	l.result.RowsInserted = counts.Inserted
	l.result.RowsSkipped = l.result.RowsRead - counts.Inserted
	txStore, storeInTx := l.store.(state.TxStore)
	if len(maxRecs) > 0 {
		if l.result.HighWaterMark, err = schema.FormatValue(cursorFd.Kind, maxRecs[0].GetData(cursor)); err != nil {
			return err
		}
		if storeInTx {
			if err = txStore.InTx(tx).Set(ctx, key, l.result.HighWaterMark); err != nil {
				return err
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing")
	}
	committed = true
	if l.result.HighWaterMark != "" && !storeInTx {
		if err = l.store.Set(ctx, key, l.result.HighWaterMark); err != nil {
			return errors.Wrapf(err, "rows committed but the high-water mark %v was not saved", l.result.HighWaterMark)
		}
	}
	return nil
}

// dedupeByKey keeps the last record per key, preserving the order of first appearance.
func dedupeByKey(recs []stream.Record, key string) (retval []stream.Record, dropped int64) {
	idx := make(map[interface{}]int, len(recs))
	retval = make([]stream.Record, 0, len(recs))
	for _, rec := range recs {
		k := rec.GetData(key)
		if i, ok := idx[k]; ok {
			retval[i] = rec
			dropped++
			continue
		}
		idx[k] = len(retval)
		retval = append(retval, rec)
	}
	return
}

// merge applies the extraction to the open rows of the table by key: upsert updates changed rows in place,
// scd2 closes them and inserts a new version.
func (l *tableLoader) merge(ctx context.Context) error {
	key := l.job.Key()
	scd2 := l.job.WriteStrategy() == c.WriteStrategyMergeScd2
	ctx, sink := components.NewErrorSink(ctx)
	defer sink.Close()
	ext, hashed, err := l.extract(ctx, sink)
	if err != nil {
		return err
	}
	newRecs := components.Drain(ctx, hashed)
	if err = l.finish(ext, sink); err != nil {
		return err
	}
	newRecs, dropped := dedupeByKey(newRecs, key)
	if dropped > 0 {
		l.Log.Warn(l.job.Table(), " has ", dropped, " rows with duplicate ", key, " values; the last row of each key is kept")
	}
	stream.SortRecordsByKeys(newRecs, []string{key})
	tx, err := l.Db.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "error starting transaction")
	}
	committed := false
	defer rollback(tx, &committed)
	q := l.dialect.QuoteIdentifier
	oldRecs, err := rdbms.QueryRecords(ctx, l.Log, tx, fmt.Sprintf("select %v, %v from %v where %v",
		q(key), q(c.ColumnRowHash), l.qualifiedTable(), l.openPredicate()))
	if err != nil {
		return errors.Wrapf(err, "error reading current rows of %v", l.qualifiedTable())
	}
	stream.SortRecordsByKeys(oldRecs, []string{key})
	diff := components.NewMergeDiff(ctx, &components.MergeDiffConfig{
		Log:                 l.Log,
		Name:                l.step("merge diff"),
		ChanOld:             components.NewSliceInput(ctx, oldRecs),
		ChanNew:             components.NewSliceInput(ctx, newRecs),
		JoinKeys:            helper.StringSliceToOrderedMap([]string{key}),
		CompareKeys:         helper.StringSliceToOrderedMap([]string{c.ColumnRowHash}),
		OutputIdenticalRows: true,
		StepWatcher:         l.Stats.AddStepWatcher(l.step("merge diff")),
		PanicHandlerFn:      sink.PanicHandler(l.step("merge diff")),
	})
	cfg := l.syncConfig(tx, diff, sink)
	cfg.KeyCols = []string{key}
	cfg.OpenPredicate = l.openPredicate()
	cfg.ActionIdentical = components.SyncActionSkip
	cfg.ActionDeleted = components.SyncActionSkip
	if scd2 {
		cfg.CloseColumn = c.ColumnValidTo
		cfg.CloseValue = l.loadTime
		cfg.ActionChanged = components.SyncActionCloseAndInsert
		if l.RetireAbsent {
			cfg.ActionDeleted = components.SyncActionClose
		}
	} else {
		cfg.ActionChanged = components.SyncActionUpdate
		for _, f := range l.job.Definition().FieldNames() {
			if f != key {
				cfg.UpdateCols = append(cfg.UpdateCols, f)
			}
		}
		cfg.UpdateCols = append(cfg.UpdateCols, c.ColumnLoadId, c.ColumnRowHash, c.ColumnValidFrom)
	}
	out, counts, err := components.NewTableSync(ctx, cfg)
	if err != nil {
		return err
	}
	identical := int64(0)
	for _, rec := range components.Drain(ctx, out) {
		if rec.GetData(c.DiffStatusFieldName) == c.MergeDiffValueIdentical {
			identical++
		}
	}
	if err = sink.Err(); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing")
	}
	committed = true
	l.result.RowsInserted = counts.Inserted
	l.result.RowsUpdated = counts.Updated
	l.result.RowsClosed = counts.Closed
	l.result.RowsSkipped = identical + dropped
	return nil
}
