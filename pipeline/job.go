// Package pipeline builds the per-table extraction jobs and loads them into the warehouse.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/relloyd/sunglass-etl/components"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/helper"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/schema"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/storage"
	"github.com/relloyd/sunglass-etl/stream"
)

// JobSpec holds the settings of one table load before validation.
type JobSpec struct {
	BaseLocation      string `errorTxt:"base location" mandatory:"yes"`
	RelativePath      string `errorTxt:"relative path" mandatory:"yes"`
	FilePattern       string `errorTxt:"file pattern" mandatory:"yes"`
	TableName         string `errorTxt:"table name" mandatory:"yes"`
	WriteStrategy     string `errorTxt:"write strategy" mandatory:"yes"`
	PrimaryKey        string
	MergeKey          string
	IncrementalColumn string
	Filter            string // optional JSON Logic rule; rows for which it is not true are dropped.
}

// Job is an immutable description of one table load. Build it with BuildJob.
type Job struct {
	location    string
	pattern     string
	table       string
	strategy    string
	key         string
	cursor      string
	filter      string
	definition  *schema.Definition
	description string
}

var writeStrategies = map[string]bool{
	c.WriteStrategyReplace:     true,
	c.WriteStrategyAppend:      true,
	c.WriteStrategyMergeUpsert: true,
	c.WriteStrategyMergeScd2:   true,
}

// BuildJob validates spec and returns the job it describes. No I/O is performed.
// It fails with *etlerr.ConfigurationError naming what is missing or invalid.
func BuildJob(spec JobSpec) (*Job, error) {
	if missing := helper.MissingMandatoryFields(spec); len(missing) > 0 {
		return nil, &etlerr.ConfigurationError{Missing: missing, Reason: fmt.Sprintf("job for table %q", spec.TableName)}
	}
	table := helper.ToSnakeCase(spec.TableName)
	def, err := schema.Lookup(table)
	if err != nil {
		return nil, err
	}
	j := &Job{
		location:   helper.JoinLocation(spec.BaseLocation, spec.RelativePath),
		pattern:    strings.TrimPrefix(spec.FilePattern, "/"),
		table:      table,
		strategy:   strings.ToLower(strings.TrimSpace(spec.WriteStrategy)),
		definition: def,
		filter:     spec.Filter,
	}
	if !writeStrategies[j.strategy] {
		return nil, etlerr.NewConfigurationError("table %v has unknown write strategy %q", table, spec.WriteStrategy)
	}
	switch j.strategy {
	case c.WriteStrategyMergeScd2:
		j.key = firstNonEmpty(spec.MergeKey, spec.PrimaryKey)
	case c.WriteStrategyMergeUpsert:
		j.key = firstNonEmpty(spec.PrimaryKey, spec.MergeKey)
	case c.WriteStrategyAppend:
		j.cursor = spec.IncrementalColumn
	}
	if (j.strategy == c.WriteStrategyMergeScd2 || j.strategy == c.WriteStrategyMergeUpsert) && j.key == "" {
		return nil, &etlerr.ConfigurationError{
			Missing: []string{"primary key or merge key"},
			Reason:  fmt.Sprintf("table %v with write strategy %v", table, j.strategy),
		}
	}
	if j.key != "" {
		if _, ok := def.Field(j.key); !ok {
			return nil, etlerr.NewConfigurationError("key %q is not a field of table %v", j.key, table)
		}
	}
	if j.cursor != "" {
		f, ok := def.Field(j.cursor)
		if !ok {
			return nil, etlerr.NewConfigurationError("incremental column %q is not a field of table %v", j.cursor, table)
		}
		if f.Optional {
			return nil, etlerr.NewConfigurationError("incremental column %q of table %v may be null", j.cursor, table)
		}
	}
	if j.filter != "" {
		if err := components.ValidateFilter(components.FilterRowsJsonLogic, components.FilterMetadata(j.filter)); err != nil {
			return nil, etlerr.NewConfigurationError("invalid filter for table %v: %v", table, err)
		}
	}
	j.description = j.describe()
	return j, nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

func (j *Job) Location() string               { return j.location }
func (j *Job) FilePattern() string            { return j.pattern }
func (j *Job) Table() string                  { return j.table }
func (j *Job) WriteStrategy() string          { return j.strategy }
func (j *Job) Key() string                    { return j.key }
func (j *Job) IncrementalColumn() string      { return j.cursor }
func (j *Job) Filter() string                 { return j.filter }
func (j *Job) Definition() *schema.Definition { return j.definition }

// ValidityColumns returns the fixed names of the columns bounding the validity of a row version.
func (j *Job) ValidityColumns() (from string, to string) {
	return c.ColumnValidFrom, c.ColumnValidTo
}

func (j *Job) describe() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "%v <- %v/%v (%v", j.table, strings.TrimSuffix(j.location, "/"), j.pattern, j.strategy)
	if j.key != "" {
		fmt.Fprintf(&b, ", key %v", j.key)
	}
	if j.cursor != "" {
		fmt.Fprintf(&b, ", cursor %v", j.cursor)
	}
	if j.filter != "" {
		b.WriteString(", filtered")
	}
	b.WriteString(")")
	return b.String()
}

func (j *Job) String() string {
	return j.description
}

// Extraction is one pass over a job's source files.
// Read Rows until it closes, then receive from Err once for the outcome.
type Extraction struct {
	Rows  chan stream.Record
	Err   chan error
	files int64
	rows  int64
}

// Files returns the number of files read. It is final once Err has been received.
func (e *Extraction) Files() int64 { return atomic.LoadInt64(&e.files) }

// RowsRead returns the number of validated rows produced. It is final once Err has been received.
func (e *Extraction) RowsRead() int64 { return atomic.LoadInt64(&e.rows) }

// Records starts a fresh extraction of the job's files: list, read Parquet, filter and validate.
// Every call opens the source again so a job can be run any number of times.
func (j *Job) Records(ctx context.Context, log logger.Logger, opener storage.Opener, statsMgr stats.StatsManager) (*Extraction, error) {
	bucket, err := opener(j.location)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v: %w", j.location, err)
	}
	if statsMgr == nil {
		statsMgr = stats.NewMockStatsManager()
	}
	ctx, sink := components.NewErrorSink(ctx)
	step := func(s string) string { return fmt.Sprintf("%v %v", j.table, s) }
	files, err := components.NewObjectListInput(ctx, &components.ObjectListInputConfig{
		Log:            log,
		Name:           step("list files"),
		Bucket:         bucket,
		Glob:           j.pattern,
		StepWatcher:    statsMgr.AddStepWatcher(step("list files")),
		ErrorSink:      sink,
		PanicHandlerFn: sink.PanicHandler(step("list files")),
	})
	if err != nil {
		sink.Close()
		return nil, etlerr.NewConfigurationError("table %v: %v", j.table, err)
	}
	e := &Extraction{Rows: make(chan stream.Record, c.ChanSize), Err: make(chan error, 1)}
	counted := make(chan stream.Record, c.ChanSize)
	go func() { // count files as they pass.
		defer close(counted)
		for rec := range files {
			atomic.AddInt64(&e.files, 1)
			select {
			case counted <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	rows := components.NewParquetFileInput(ctx, &components.ParquetFileInputConfig{
		Log:            log,
		Name:           step("read parquet"),
		Bucket:         bucket,
		InputChan:      counted,
		StepWatcher:    statsMgr.AddStepWatcher(step("read parquet")),
		ErrorSink:      sink,
		PanicHandlerFn: sink.PanicHandler(step("read parquet")),
	})
	if j.filter != "" {
		rows, err = components.NewFilterRows(ctx, &components.FilterRowsConfig{
			Log:            log,
			Name:           step("filter"),
			InputChan:      rows,
			FilterType:     components.FilterRowsJsonLogic,
			FilterMetadata: components.FilterMetadata(j.filter),
			ErrorSink:      sink,
			PanicHandlerFn: sink.PanicHandler(step("filter")),
		})
		if err != nil { // validated by BuildJob.
			sink.Close()
			return nil, err
		}
	}
	valid := components.NewSchemaValidator(ctx, &components.SchemaValidatorConfig{
		Log:            log,
		Name:           step("validate"),
		InputChan:      rows,
		Definition:     j.definition,
		StepWatcher:    statsMgr.AddStepWatcher(step("validate")),
		ErrorSink:      sink,
		PanicHandlerFn: sink.PanicHandler(step("validate")),
	})
	go func() {
		defer sink.Close()
		defer close(e.Err)
		defer close(e.Rows)
		for rec := range valid {
			select {
			case e.Rows <- rec:
				atomic.AddInt64(&e.rows, 1)
			case <-ctx.Done():
			}
		}
		if err := sink.Err(); err != nil {
			e.Err <- err
			return
		}
		if err := ctx.Err(); err != nil { // if the caller cancelled...
			e.Err <- err
		}
	}()
	return e, nil
}
