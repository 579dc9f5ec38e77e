package components

import (
	"context"
	"fmt"

	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	s "github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/stream"
)

// TableSyncAction says what TableSync does with a record of a given merge-diff flag.
type TableSyncAction int

const (
	SyncActionSkip           TableSyncAction = iota // count the record only.
	SyncActionInsert                                // INSERT the record.
	SyncActionUpdate                                // UPDATE UpdateCols of the row matching the key.
	SyncActionClose                                 // set CloseColumn on the open row matching the key.
	SyncActionCloseAndInsert                        // close the open row then INSERT the record as a new open row.
)

// TableSyncCounts holds the number of rows written by a TableSync. Read it after the output channel closes.
type TableSyncCounts struct {
	Inserted int64
	Updated  int64
	Closed   int64
	Skipped  int64
}

type TableSyncConfig struct {
	Log          logger.Logger
	Name         string
	InputChan    chan stream.Record // input rows to write to database table.
	OutputDb     shared.Execer      // target connection or transaction for writes.
	Dml          shared.DmlGenerator
	Dialect      shared.Dialect
	OutputSchema string
	OutputTable  string
	KeyCols      []string // key columns used to find rows to update or close.
	InsertCols   []string // all columns written by an INSERT, in order.
	UpdateCols   []string // columns set when a changed row is updated in place.
	// ConstantValues supply values for columns that are not found on the input record, e.g. the load id.
	ConstantValues map[string]interface{}
	CloseColumn    string      // column set when closing a row, e.g. valid_to.
	CloseValue     interface{} // value written to CloseColumn.
	OpenPredicate  string      // predicate identifying open rows, ANDed to updates and closes.
	// FlagKeyName is the field holding the merge-diff flag. Records without it are inserted.
	FlagKeyName     string
	ActionNew       TableSyncAction
	ActionChanged   TableSyncAction
	ActionDeleted   TableSyncAction
	ActionIdentical TableSyncAction
	TxtBatchNumRows int // max rows in one INSERT statement. Defaults to what the dialect allows, up to shared.DefaultBatchSize.
	StepWatcher     *s.StepWatcher
	ErrorSink       *ErrorSink
	PanicHandlerFn  PanicHandlerFunc
}

// NewTableSync applies the output of a MergeDiff step (or any stream of new rows) to a target table.
// Records are INSERTed, UPDATEd or closed based on the flag field, FlagKeyName, and the configured actions.
// Inserts are batched into multi-row statements; updates and closes run one row at a time in input order.
// Records are released downstream once processed; the counts are complete when the output channel closes.
func NewTableSync(ctx context.Context, cfg *TableSyncConfig) (outputChan chan stream.Record, counts *TableSyncCounts, err error) {
	if cfg.OutputDb == nil || cfg.Dml == nil || cfg.Dialect == nil {
		return nil, nil, fmt.Errorf("%v error - missing db connection, DML generator or dialect", cfg.Name)
	}
	if cfg.InputChan == nil {
		return nil, nil, fmt.Errorf("%v error - missing input channel", cfg.Name)
	}
	if len(cfg.InsertCols) == 0 {
		return nil, nil, fmt.Errorf("%v error - no columns to insert", cfg.Name)
	}
	if cfg.FlagKeyName == "" {
		cfg.FlagKeyName = Defaults.ChanField4MergeDiff
	}
	if cfg.ActionNew == SyncActionSkip {
		cfg.ActionNew = SyncActionInsert
	}
	if cfg.TxtBatchNumRows <= 0 {
		cfg.TxtBatchNumRows = shared.BatchSizeFor(cfg.Dialect, len(cfg.InsertCols))
	}
	genCfg := func(keyCols, otherCols []string) *shared.SqlStatementGeneratorConfig {
		return &shared.SqlStatementGeneratorConfig{
			Log:             cfg.Log,
			OutputSchema:    cfg.OutputSchema,
			OutputTable:     cfg.OutputTable,
			TargetKeyCols:   keyCols,
			TargetOtherCols: otherCols,
			Predicate:       cfg.OpenPredicate,
		}
	}
	needsKey := func(a TableSyncAction) bool {
		return a == SyncActionUpdate || a == SyncActionClose || a == SyncActionCloseAndInsert
	}
	for _, a := range []TableSyncAction{cfg.ActionChanged, cfg.ActionDeleted, cfg.ActionIdentical} {
		if needsKey(a) && len(cfg.KeyCols) == 0 {
			return nil, nil, fmt.Errorf("%v error - key columns are required to update rows", cfg.Name)
		}
		if (a == SyncActionClose || a == SyncActionCloseAndInsert) && cfg.CloseColumn == "" {
			return nil, nil, fmt.Errorf("%v error - close column is required to close rows", cfg.Name)
		}
		if a == SyncActionUpdate && len(cfg.UpdateCols) == 0 {
			return nil, nil, fmt.Errorf("%v error - no columns to update", cfg.Name)
		}
	}
	insertGen := cfg.Dml.NewInsertGenerator(genCfg(nil, cfg.InsertCols))
	var updateGen, closeGen shared.SqlStmtGenerator
	if len(cfg.UpdateCols) > 0 && len(cfg.KeyCols) > 0 {
		updateGen = cfg.Dml.NewUpdateGenerator(genCfg(cfg.KeyCols, cfg.UpdateCols))
	}
	if cfg.CloseColumn != "" && len(cfg.KeyCols) > 0 {
		closeGen = cfg.Dml.NewUpdateGenerator(genCfg(cfg.KeyCols, []string{cfg.CloseColumn}))
	}
	counts = &TableSyncCounts{}
	outputChan = make(chan stream.Record, c.ChanSize)
	go func() {
		defer close(outputChan)
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		cfg.Log.Info(cfg.Name, " is running")
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching()
			defer cfg.StepWatcher.StopWatching()
		}
		valueOf := func(rec stream.Record, col string) interface{} {
			if v, ok := rec.GetDataOk(col); ok {
				return v
			}
			return cfg.ConstantValues[col]
		}
		values := func(rec stream.Record, cols ...[]string) []interface{} {
			retval := make([]interface{}, 0)
			for _, list := range cols {
				for _, col := range list {
					retval = append(retval, valueOf(rec, col))
				}
			}
			return retval
		}
		fail := func(err error) {
			cfg.Log.Error(cfg.Name, " aborting due to error: ", err)
			cfg.ErrorSink.Raise(fmt.Errorf("%v: %w", cfg.Name, err))
		}
		needNewBatch := true
		flushInserts := func() error {
			if needNewBatch || insertGen.GetRowCount() == 0 {
				return nil
			}
			if _, err := cfg.OutputDb.ExecContext(ctx, insertGen.GetStatement(), insertGen.GetValues()...); err != nil {
				return fmt.Errorf("error executing INSERT into %v: %w", cfg.OutputTable, err)
			}
			counts.Inserted += int64(insertGen.GetRowCount())
			needNewBatch = true
			return nil
		}
		insert := func(rec stream.Record) error {
			if needNewBatch { // if we need to start a new batch...
				insertGen.InitBatch(cfg.TxtBatchNumRows)
				needNewBatch = false
			}
			full, err := insertGen.AddValuesToBatch(values(rec, cfg.InsertCols))
			if err != nil {
				return err
			}
			if full {
				return flushInserts()
			}
			return nil
		}
		update := func(rec stream.Record) error {
			if _, err := cfg.OutputDb.ExecContext(ctx, updateGen.GetStatement(), values(rec, cfg.UpdateCols, cfg.KeyCols)...); err != nil {
				return fmt.Errorf("error executing UPDATE of %v: %w", cfg.OutputTable, err)
			}
			counts.Updated++
			return nil
		}
		closeRow := func(rec stream.Record) error {
			args := append([]interface{}{cfg.CloseValue}, values(rec, cfg.KeyCols)...)
			if _, err := cfg.OutputDb.ExecContext(ctx, closeGen.GetStatement(), args...); err != nil {
				return fmt.Errorf("error closing row of %v: %w", cfg.OutputTable, err)
			}
			counts.Closed++
			return nil
		}
		apply := func(rec stream.Record) error {
			action := cfg.ActionNew
			flag, _ := rec.GetDataOk(cfg.FlagKeyName)
			switch flag {
			case c.MergeDiffValueChanged:
				action = cfg.ActionChanged
			case c.MergeDiffValueDeleted:
				action = cfg.ActionDeleted
			case c.MergeDiffValueIdentical:
				action = cfg.ActionIdentical
			}
			switch action {
			case SyncActionInsert:
				return insert(rec)
			case SyncActionUpdate:
				return update(rec)
			case SyncActionClose:
				return closeRow(rec)
			case SyncActionCloseAndInsert:
				if err := closeRow(rec); err != nil {
					return err
				}
				return insert(rec)
			}
			counts.Skipped++
			return nil
		}
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if we have run out of rows...
					if err := flushInserts(); err != nil {
						fail(err)
						return
					}
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				if err := apply(rec); err != nil {
					fail(err)
					return
				}
				if cfg.StepWatcher != nil {
					cfg.StepWatcher.AddRows(1)
				}
				if !safeSend(ctx, rec, outputChan) {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
			case <-ctx.Done():
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return outputChan, counts, nil
}
