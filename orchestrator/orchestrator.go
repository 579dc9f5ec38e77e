package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/pipeline"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/relloyd/sunglass-etl/transform"
)

const (
	iconStart     = "\U0001F3AF"
	iconSuccess   = "✅"
	iconFailure   = "❌"
	iconWarning   = "⚠️ "
	iconCelebrate = "\U0001F389"
	iconSetup     = "\U0001F527"
	iconRunning   = "\U0001F504"
	rule          = "============================================================"
)

// Loader loads jobs into a dataset.
type Loader interface {
	RunLoad(ctx context.Context, jobs []*pipeline.Job, datasetName string) (*pipeline.LoadSummary, error)
}

// Config holds the collaborators and settings of a run.
type Config struct {
	Log             logger.Logger
	Out             io.Writer // human readable progress; defaults to stdout.
	Loader          Loader
	Transformer     transform.Runner
	Jobs            []*pipeline.Job
	PipelineName    string
	RawDataset      string
	DbtDataset      string
	PackageLocation string
	SkipLoad        bool
	SkipTransform   bool
	Close           func() // releases the warehouse connection; called once when Run returns.
	Metrics         *stats.Metrics
	PushgatewayUrl  string
}

// Report is the outcome of a run.
type Report struct {
	State       State                   `json:"-"`
	StateName   string                  `json:"state"`
	StartedAt   time.Time               `json:"startedAt"`
	FinishedAt  time.Time               `json:"finishedAt"`
	Load        *pipeline.LoadSummary   `json:"load,omitempty"`
	Models      []transform.ModelResult `json:"models,omitempty"`
	Error       string                  `json:"error,omitempty"`
	ErrorKind   string                  `json:"errorKind,omitempty"`
	Interrupted bool                    `json:"interrupted"`
}

// Orchestrator runs the load phase then the transform phase once.
type Orchestrator struct {
	cfg    Config
	icons  bool
	mu     sync.RWMutex
	state  State
	report Report
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Log == nil {
		return nil, etlerr.NewConfigurationError("missing logger")
	}
	if !cfg.SkipLoad && cfg.Loader == nil {
		return nil, etlerr.NewConfigurationError("missing loader")
	}
	if !cfg.SkipTransform && cfg.Transformer == nil {
		return nil, etlerr.NewConfigurationError("missing transformation runner")
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	o := &Orchestrator{cfg: cfg, state: StateIdle}
	if f, ok := cfg.Out.(*os.File); ok {
		o.icons = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Report returns a copy of the run outcome so far.
func (o *Orchestrator) Report() Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r := o.report
	r.State = o.state
	r.StateName = o.state.String()
	return r
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !canTransition(o.state, to) {
		o.cfg.Log.Error("invalid pipeline state change ", o.state, " -> ", to)
		return
	}
	o.cfg.Log.Info("pipeline state ", o.state, " -> ", to)
	o.state = to
}

func (o *Orchestrator) icon(s string) string {
	if o.icons {
		return s + " "
	}
	return ""
}

func (o *Orchestrator) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(o.cfg.Out, format, args...)
}

// Run executes the pipeline and returns the process exit code: 0 when Done, 1 when Failed.
// The warehouse connection is closed before Run returns.
func (o *Orchestrator) Run(ctx context.Context) (exitCode int) {
	if o.State() != StateIdle {
		o.cfg.Log.Error("pipeline has already run")
		return 1
	}
	if o.cfg.Close != nil {
		defer o.cfg.Close()
	}
	o.mu.Lock()
	o.report.StartedAt = time.Now().UTC()
	o.mu.Unlock()
	defer o.finish()
	o.printf("%v\n%vStarting Sunglass Store ETL Pipeline\n%v\n\n", rule, o.icon(iconStart), rule)
	if !o.cfg.SkipLoad {
		o.transition(StateLoading)
		o.printf("Step 1: Extracting and loading data...\n")
		if err := o.load(ctx); err != nil {
			return o.fail(ctx, err)
		}
	}
	if !o.cfg.SkipTransform {
		o.transition(StateTransforming)
		o.printf("\nStep 2: Running dbt transformations...\n")
		if err := o.transformPhase(ctx); err != nil {
			return o.fail(ctx, err)
		}
	}
	o.transition(StateDone)
	o.printf("\n%v\n%vPipeline completed successfully!\n%v\n", rule, o.icon(iconCelebrate), rule)
	return 0
}

func (o *Orchestrator) load(ctx context.Context) error {
	summary, err := o.cfg.Loader.RunLoad(ctx, o.cfg.Jobs, o.cfg.RawDataset)
	o.mu.Lock()
	o.report.Load = summary
	o.mu.Unlock()
	if summary != nil {
		o.printf("\n%v", summary)
	}
	if err != nil {
		o.printf("%vError during extract and load: %v\n", o.icon(iconFailure), err)
		return err
	}
	o.printf("%vLoaded %v rows into dataset %v\n", o.icon(iconSuccess), summary.RowsLoaded(), o.cfg.RawDataset)
	return nil
}

func (o *Orchestrator) transformPhase(ctx context.Context) error {
	o.printf("%vSetting up dbt environment...\n", o.icon(iconSetup))
	o.printf("%vRunning dbt models...\n", o.icon(iconRunning))
	results, err := o.cfg.Transformer.RunTransform(ctx, o.cfg.PackageLocation, o.cfg.DbtDataset)
	o.mu.Lock()
	o.report.Models = results
	o.mu.Unlock()
	if len(results) > 0 {
		o.printf("\n=== dbt Transformation Results ===\n")
		for _, m := range results {
			icon := iconSuccess
			if !m.Succeeded() {
				icon = iconFailure
			}
			o.printf("%vModel: %v\n  Time: %.2fs\n  Status: %v\n  Message: %v\n\n",
				o.icon(icon), m.Name, m.Duration.Seconds(), m.Status, m.Message)
		}
	}
	var notFound *etlerr.PackageNotFoundError
	switch {
	case errors.As(err, &notFound):
		o.printf("%vError: dbt project not found at '%v'\nDetails: %v\n", o.icon(iconFailure), notFound.Location, notFound.Err)
		return err
	case err != nil:
		o.printf("%vError during dbt transformations: %v\n", o.icon(iconFailure), err)
		return err
	}
	o.printf("%vAll dbt transformations completed successfully!\n", o.icon(iconSuccess))
	return nil
}

// fail moves to Failed and prints the failure banner, or the interrupt message if ctx was cancelled.
func (o *Orchestrator) fail(ctx context.Context, err error) int {
	o.transition(StateFailed)
	o.mu.Lock()
	o.report.Error = err.Error()
	o.report.ErrorKind = etlerr.KindOf(err).String()
	o.mu.Unlock()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		o.mu.Lock()
		o.report.Interrupted = true
		o.mu.Unlock()
		o.printf("\n\n%vPipeline interrupted by user\n", o.icon(iconWarning))
		return 1
	}
	o.printf("\n%v\n%vPipeline failed!\n%v\n", rule, o.icon(iconFailure), rule)
	o.printf("Error: %v\n", err)
	o.printf("\nPlease check:\n")
	for i, item := range o.checklist() {
		o.printf("  %v. %v\n", i+1, item)
	}
	return 1
}

func (o *Orchestrator) checklist() []string {
	return []string{
		"All environment variables are set in .env file",
		"Database credentials are correct in the DESTINATION connection string",
		"S3 bucket access is properly configured",
		fmt.Sprintf("dbt project exists at %v", o.cfg.PackageLocation),
	}
}

// finish records the end of the run and publishes metrics.
func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.report.FinishedAt = time.Now().UTC()
	state := o.state
	o.mu.Unlock()
	if o.cfg.Metrics == nil {
		return
	}
	o.cfg.Metrics.ObserveRun(strings.ToLower(state.String()))
	if o.cfg.PushgatewayUrl != "" {
		if err := o.cfg.Metrics.Push(o.cfg.PushgatewayUrl, o.cfg.PipelineName); err != nil {
			o.cfg.Log.Warn("unable to push metrics to ", o.cfg.PushgatewayUrl, ": ", err)
		}
	}
}
