package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/stats"
)

// NativeRunner runs a transformation package directly against the warehouse.
// Models are selects whose ref and source expressions are rendered to qualified table names; each model is
// materialized as a view or table in the target dataset.
type NativeRunner struct {
	Log           logger.Logger
	Db            shared.Connector
	SourceDataset string // schema for source() expressions with no declared schema.
	Metrics       *stats.Metrics
}

func NewNativeRunner(log logger.Logger, db shared.Connector, sourceDataset string, metrics *stats.Metrics) *NativeRunner {
	return &NativeRunner{Log: log, Db: db, SourceDataset: sourceDataset, Metrics: metrics}
}

func (r *NativeRunner) RunTransform(ctx context.Context, packageLocation string, datasetName string) ([]ModelResult, error) {
	project, err := LoadProject(packageLocation)
	if err != nil {
		return nil, err
	}
	d := r.Db.GetDialect()
	if err = rdbms.EnsureDataset(ctx, r.Log, r.Db, d, datasetName); err != nil {
		return nil, err
	}
	plan := newExecutionPlan(project.ModelsList())
	r.Log.Info("running ", len(plan.order), " models of package ", project.Name, " into dataset ", datasetName)
	results := make([]ModelResult, 0, len(plan.order)+len(plan.duplicates))
	status := make(map[string]string, len(plan.order))
	refFn := func(model string) string { return d.QualifiedTable(datasetName, model) }
	sourceFn := func(s sourceRef) string {
		schemaName, ok := project.SourceSchema(s.source)
		if !ok {
			schemaName = r.SourceDataset
		}
		return d.QualifiedTable(schemaName, s.table)
	}
	for _, m := range plan.order {
		if err = ctx.Err(); err != nil {
			return results, err
		}
		res := ModelResult{Name: m.Name}
		started := time.Now()
		if failure, ok := plan.failures[m.Name]; ok {
			res.Status = StatusFailure
			res.Message = failure.Error()
		} else if upstream := firstUnsuccessful(m.Refs, status); upstream != "" {
			res.Status = StatusSkipped
			res.Message = fmt.Sprintf("skipped because upstream model %v did not succeed", upstream)
		} else if err := r.materialize(ctx, datasetName, m, m.render(refFn, sourceFn)); err != nil {
			res.Status = StatusFailure
			res.Message = err.Error()
		} else {
			res.Status = StatusSuccess
			res.Message = fmt.Sprintf("created %v %v", m.Materialized, refFn(m.Name))
		}
		res.Duration = time.Since(started)
		status[m.Name] = res.Status
		r.observe(res)
		results = append(results, res)
	}
	for _, m := range plan.duplicates {
		res := ModelResult{Name: m.Name, Status: StatusFailure,
			Message: fmt.Sprintf("duplicate model name defined at %v", m.Path)}
		r.observe(res)
		results = append(results, res)
	}
	return results, resultsError(results)
}

func firstUnsuccessful(refs []string, status map[string]string) string {
	for _, ref := range refs {
		if status[ref] != StatusSuccess {
			return ref
		}
	}
	return ""
}

// materialize (re)builds the model, replacing whatever object of the same name exists.
func (r *NativeRunner) materialize(ctx context.Context, dataset string, m *Model, body string) error {
	var kind string
	switch m.Materialized {
	case MaterializedView:
		kind = rdbms.RelationView
	case MaterializedTable:
		kind = rdbms.RelationTable
	default:
		return fmt.Errorf("unsupported materialization %q", m.Materialized)
	}
	if body == "" {
		return errors.New("model has no sql")
	}
	d := r.Db.GetDialect()
	existing, err := rdbms.RelationKind(ctx, r.Log, r.Db, d, dataset, m.Name)
	if err != nil {
		return err
	}
	for _, stmt := range d.MaterializeSql(dataset, m.Name, kind, existing, body) {
		r.Log.Debug("model ", m.Name, ": ", strings.TrimSpace(stmt))
		if _, err = r.Db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "error materializing %v", m.Name)
		}
	}
	// Some warehouses accept a view over missing relations until it is queried.
	if _, err = rdbms.QueryRecords(ctx, r.Log, r.Db, fmt.Sprintf("select * from %v where 1=0", d.QualifiedTable(dataset, m.Name))); err != nil {
		return errors.Wrapf(err, "model %v does not compile", m.Name)
	}
	return nil
}

func (r *NativeRunner) observe(res ModelResult) {
	if res.Status == StatusFailure {
		r.Log.Error("model ", res.Name, " failed: ", res.Message)
	} else {
		r.Log.Info("model ", res.Name, " ", res.Status, " (", res.Duration.Round(time.Millisecond), ")")
	}
	if r.Metrics != nil {
		r.Metrics.ObserveModel(res.Name, res.Status, res.Duration)
	}
}
