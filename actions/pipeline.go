// Package actions wires the configured pipeline together and exposes it to the CLI, lambda and web server.
package actions

import (
	"io"

	"github.com/pkg/errors"
	"github.com/relloyd/sunglass-etl/config"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/orchestrator"
	"github.com/relloyd/sunglass-etl/pipeline"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/state"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/storage"
	"github.com/relloyd/sunglass-etl/transform"
)

// Steps selects the phases of a run.
type Steps struct {
	Load      bool
	Transform bool
}

var (
	StepsAll           = Steps{Load: true, Transform: true}
	StepsLoadOnly      = Steps{Load: true}
	StepsTransformOnly = Steps{Transform: true}
)

// PipelineOptions are the collaborators shared by every run of a process.
type PipelineOptions struct {
	Out     io.Writer
	Metrics *stats.Metrics
	Opener  storage.Opener // defaults to the s3/file opener for cfg.S3Region.
}

// NewPipeline builds an Orchestrator for cfg. Jobs are validated before the warehouse connection is opened.
// The orchestrator owns the connection and closes it when its run ends.
func NewPipeline(log logger.Logger, cfg *config.Config, steps Steps, opts PipelineOptions) (*orchestrator.Orchestrator, error) {
	jobs, err := cfg.Jobs()
	if err != nil {
		return nil, err
	}
	if opts.Opener == nil {
		opts.Opener = storage.NewOpener(storage.Options{S3Region: cfg.S3Region})
	}
	var store state.Store
	if steps.Load && cfg.StateBackend == c.StateBackendLocal {
		if store, err = state.NewPebbleStore(cfg.PipelinesDir, cfg.PipelineName); err != nil {
			return nil, err
		}
	}
	closeStore := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				log.Warn("error closing state store: ", err)
			}
		}
	}
	db, err := rdbms.OpenDbConnection(log, shared.DsnConnectionDetails{Dsn: cfg.Destination})
	if err != nil {
		closeStore()
		return nil, errors.Wrapf(err, "error connecting to %v", shared.DsnConnectionDetails{Dsn: cfg.Destination})
	}
	ocfg := orchestrator.Config{
		Log:             log,
		Out:             opts.Out,
		Jobs:            jobs,
		PipelineName:    cfg.PipelineName,
		RawDataset:      cfg.RawDataset,
		DbtDataset:      cfg.DbtDataset,
		PackageLocation: cfg.DbtPackageLocation,
		SkipLoad:        !steps.Load,
		SkipTransform:   !steps.Transform,
		Metrics:         opts.Metrics,
		PushgatewayUrl:  cfg.PushgatewayUrl,
		Close: func() {
			db.Close()
			closeStore()
		},
	}
	if steps.Load {
		ocfg.Loader, err = pipeline.NewRunner(pipeline.RunnerConfig{
			Log:          log,
			Db:           db,
			Opener:       opts.Opener,
			State:        store,
			PipelineName: cfg.PipelineName,
			Workers:      cfg.LoadWorkers,
			RetireAbsent: cfg.Scd2RetireAbsent,
			Metrics:      opts.Metrics,
			Stats:        stats.NewLoadStats(log),
		})
		if err != nil {
			ocfg.Close()
			return nil, err
		}
	}
	if steps.Transform {
		ocfg.Transformer = newTransformer(log, cfg, db, opts.Metrics)
	}
	o, err := orchestrator.NewOrchestrator(ocfg)
	if err != nil {
		ocfg.Close()
		return nil, err
	}
	return o, nil
}

func newTransformer(log logger.Logger, cfg *config.Config, db shared.Connector, metrics *stats.Metrics) transform.Runner {
	if cfg.TransformRunner == c.TransformRunnerDbt {
		env := []string{
			c.EnvVarRawDataset + "=" + cfg.RawDataset,
			c.EnvVarPipelineName + "=" + cfg.PipelineName,
		}
		return transform.NewDbtRunner(log, cfg.DbtExecutable, env, metrics)
	}
	return transform.NewNativeRunner(log, db, cfg.RawDataset, metrics)
}
