package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/state"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/storage"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

// TableLoad reports the outcome of loading one table.
type TableLoad struct {
	Table         string        `json:"table"`
	WriteStrategy string        `json:"writeStrategy"`
	Status        string        `json:"status"` // constants.LoadStatusSucceeded or constants.LoadStatusFailed
	Files         int64         `json:"files"`
	RowsRead      int64         `json:"rowsRead"`
	RowsInserted  int64         `json:"rowsInserted"`
	RowsUpdated   int64         `json:"rowsUpdated"`
	RowsClosed    int64         `json:"rowsClosed"`
	RowsSkipped   int64         `json:"rowsSkipped"`
	HighWaterMark string        `json:"highWaterMark,omitempty"` // new cursor value, if the job has an incremental column and rows were loaded.
	Duration      time.Duration `json:"duration"`
	Err           error         `json:"-"`
}

// MarshalJSON adds the error message, if any.
func (t TableLoad) MarshalJSON() ([]byte, error) {
	type plain TableLoad
	var msg string
	if t.Err != nil {
		msg = t.Err.Error()
	}
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain(t), msg})
}

// LoadSummary reports a load run.
type LoadSummary struct {
	LoadID      string      `json:"loadId"`
	Pipeline    string      `json:"pipeline"`
	Destination string      `json:"destination"`
	Dataset     string      `json:"dataset"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
	Tables      []TableLoad `json:"tables"`
}

// Failed returns the table loads that failed, in job order.
func (s *LoadSummary) Failed() []TableLoad {
	retval := make([]TableLoad, 0)
	for _, t := range s.Tables {
		if t.Status != c.LoadStatusSucceeded {
			retval = append(retval, t)
		}
	}
	return retval
}

// RowsLoaded returns the rows written across all tables.
func (s *LoadSummary) RowsLoaded() int64 {
	n := int64(0)
	for _, t := range s.Tables {
		n += t.RowsInserted + t.RowsUpdated
	}
	return n
}

func (s *LoadSummary) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Pipeline %v load %v into %v dataset %v (%v)\n", s.Pipeline, s.LoadID, s.Destination, s.Dataset,
		s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "  %-18v %-12v %-9v files=%v read=%v inserted=%v updated=%v closed=%v skipped=%v",
			t.Table, t.WriteStrategy, t.Status, t.Files, t.RowsRead, t.RowsInserted, t.RowsUpdated, t.RowsClosed, t.RowsSkipped)
		if t.HighWaterMark != "" {
			fmt.Fprintf(&b, " cursor=%v", t.HighWaterMark)
		}
		if t.Err != nil {
			fmt.Fprintf(&b, " error=%v", t.Err)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RunnerConfig holds the collaborators of a Runner.
type RunnerConfig struct {
	Log          logger.Logger
	Db           shared.Connector
	Opener       storage.Opener
	State        state.Store // high-water marks; defaults to the warehouse state table.
	PipelineName string
	Workers      int  // tables loaded in parallel; defaults to 1.
	RetireAbsent bool // close open SCD2 rows whose key is missing from the source.
	Metrics      *stats.Metrics
	Stats        stats.StatsManager
	Clock        func() time.Time
}

// Runner loads jobs into the warehouse.
type Runner struct {
	RunnerConfig
	dialect shared.Dialect
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Db == nil {
		return nil, etlerr.NewConfigurationError("missing warehouse connection")
	}
	if cfg.Opener == nil {
		return nil, etlerr.NewConfigurationError("missing storage opener")
	}
	if cfg.PipelineName == "" {
		return nil, &etlerr.ConfigurationError{Missing: []string{c.EnvVarPipelineName}}
	}
	if cfg.Workers < 1 {
		cfg.Workers = c.DefaultLoadWorkers
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewMockStatsManager()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Runner{RunnerConfig: cfg, dialect: cfg.Db.GetDialect()}, nil
}

// RunLoad loads every job into datasetName. Tables load independently, each in its own transaction.
// The summary is always returned; if any table failed the error is an *etlerr.LoadError wrapping the
// first failure in job order.
func (r *Runner) RunLoad(ctx context.Context, jobs []*Job, datasetName string) (*LoadSummary, error) {
	summary := &LoadSummary{
		LoadID:      xid.New().String(),
		Pipeline:    r.PipelineName,
		Destination: r.Db.GetType(),
		Dataset:     datasetName,
		StartedAt:   r.Clock().UTC(),
		Tables:      make([]TableLoad, len(jobs)),
	}
	store, err := r.prepare(ctx, datasetName)
	if err != nil {
		summary.FinishedAt = r.Clock().UTC()
		return summary, &etlerr.LoadError{Err: err}
	}
	r.Log.Info("starting load ", summary.LoadID, " of ", len(jobs), " tables into dataset ", datasetName)
	r.Stats.StartDumping()
	// Tables are independent so failures do not cancel the group.
	g := errgroup.Group{}
	g.SetLimit(r.Workers)
	for idx, job := range jobs {
		idx, job := idx, job
		g.Go(func() error {
			t := r.loadTable(ctx, job, datasetName, store, summary.LoadID, summary.StartedAt)
			summary.Tables[idx] = t
			if r.Metrics != nil {
				r.Metrics.ObserveTable(t.Table, t.WriteStrategy, t.RowsInserted+t.RowsUpdated, t.Duration, t.Err != nil)
			}
			return nil
		})
	}
	_ = g.Wait()
	r.Stats.StopDumping()
	summary.FinishedAt = r.Clock().UTC()
	var firstErr error
	for _, t := range summary.Tables {
		if t.Err != nil {
			firstErr = &etlerr.LoadError{Table: t.Table, Err: t.Err}
			break
		}
	}
	status := c.LoadStatusSucceeded
	if firstErr != nil {
		status = c.LoadStatusFailed
	}
	if err := r.recordLoad(context.WithoutCancel(ctx), summary, status); err != nil {
		r.Log.Error("unable to record load ", summary.LoadID, ": ", err)
		if firstErr == nil {
			firstErr = &etlerr.LoadError{Table: c.TableLoads, Err: err}
		}
	}
	r.Log.Info("load ", summary.LoadID, " ", status)
	return summary, firstErr
}

// prepare creates the dataset and bookkeeping tables and returns the state store to use.
func (r *Runner) prepare(ctx context.Context, dataset string) (state.Store, error) {
	if err := rdbms.EnsureDataset(ctx, r.Log, r.Db, r.dialect, dataset); err != nil {
		return nil, err
	}
	if err := rdbms.EnsureTable(ctx, r.Log, r.Db, r.dialect, dataset, c.TableLoads, rdbms.LoadsColumns); err != nil {
		return nil, err
	}
	store := r.State
	if store == nil {
		store = state.NewWarehouseStore(r.Log, r.Db, dataset)
	}
	if ws, ok := store.(interface{ Ensure(context.Context) error }); ok {
		if err := ws.Ensure(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (r *Runner) recordLoad(ctx context.Context, s *LoadSummary, status string) error {
	cols := rdbms.ColumnNames(rdbms.LoadsColumns)
	ins := r.Db.GetDmlGenerator().NewInsertGenerator(&shared.SqlStatementGeneratorConfig{
		Log:             r.Log,
		OutputSchema:    s.Dataset,
		OutputTable:     c.TableLoads,
		TargetOtherCols: cols,
	})
	ins.InitBatch(1)
	if _, err := ins.AddValuesToBatch([]interface{}{s.LoadID, s.Pipeline, s.Dataset, status, s.StartedAt, s.FinishedAt}); err != nil {
		return err
	}
	_, err := r.Db.ExecContext(ctx, ins.GetStatement(), ins.GetValues()...)
	return errors.Wrap(err, "error inserting load record")
}

// loadTable runs one job to completion and never panics; failures are returned in TableLoad.Err.
func (r *Runner) loadTable(ctx context.Context, job *Job, dataset string, store state.Store, loadID string, loadTime time.Time) (t TableLoad) {
	started := time.Now()
	t = TableLoad{Table: job.Table(), WriteStrategy: job.WriteStrategy(), Status: c.LoadStatusFailed}
	defer func() {
		if p := recover(); p != nil {
			t.Err = fmt.Errorf("panic loading %v: %v", job.Table(), p)
		}
		if t.Err != nil {
			t.Status = c.LoadStatusFailed
			r.Log.Error("load of ", job.Table(), " failed: ", t.Err)
		}
		t.Duration = time.Since(started)
	}()
	r.Log.Info("loading ", job)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := rdbms.EnsureTable(ctx, r.Log, r.Db, r.dialect, dataset, job.Table(), rdbms.EntityColumns(job.Definition())); err != nil {
		t.Err = err
		return
	}
	l := &tableLoader{
		Runner:   r,
		job:      job,
		dataset:  dataset,
		store:    store,
		loadID:   loadID,
		loadTime: loadTime,
		result:   &t,
	}
	var fn func(ctx context.Context) error
	switch job.WriteStrategy() {
	case c.WriteStrategyReplace:
		fn = l.replace
	case c.WriteStrategyAppend:
		fn = l.append
	case c.WriteStrategyMergeUpsert, c.WriteStrategyMergeScd2:
		fn = l.merge
	default:
		t.Err = etlerr.NewConfigurationError("unknown write strategy %q", job.WriteStrategy())
		return
	}
	if t.Err = fn(ctx); t.Err == nil {
		t.Status = c.LoadStatusSucceeded
		r.Log.Info("loaded ", job.Table(), ": ", t.RowsRead, " rows read from ", t.Files, " files, ",
			t.RowsInserted, " inserted, ", t.RowsUpdated, " updated, ", t.RowsClosed, " closed, ", t.RowsSkipped, " skipped")
	}
	return
}
