package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relloyd/sunglass-etl/actions"
	"github.com/relloyd/sunglass-etl/config"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/spf13/cobra"
)

type runOptions struct {
	logLevel  string
	envFile   string
	stackDump bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract, load and transform (the default)",
	Long:  `Load every source table into the raw dataset then run the transformation package`,
	Args:  cobra.NoArgs,
	Run:   pipelineCommand(actions.StepsAll),
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Extract and load only",
	Long:  `Load every source table into the raw dataset without running the transformation package`,
	Args:  cobra.NoArgs,
	Run:   pipelineCommand(actions.StepsLoadOnly),
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Run the transformation package only",
	Long:  `Run the transformation package over tables already loaded into the raw dataset`,
	Args:  cobra.NoArgs,
	Run:   pipelineCommand(actions.StepsTransformOnly),
}

func init() {
	rootCmd.AddCommand(runCmd, loadCmd, transformCmd)
}

// pipelineCommand returns a cobra Run func that runs steps and records the exit code for Execute.
func pipelineCommand(steps actions.Steps) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		exitCode = runPipeline(cmd.Context(), steps, globalOpts, cmd.OutOrStdout())
	}
}

// runPipeline loads the configuration and runs the pipeline once, returning the process exit code.
// SIGINT and SIGTERM cancel the run.
func runPipeline(ctx context.Context, steps actions.Steps, opts runOptions, out io.Writer) int {
	log, err := newLogger(opts, "")
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := loadConfig(log, opts)
	if err != nil {
		_, _ = fmt.Fprintf(out, "Configuration error: %v\n", err)
		log.Error(err)
		return 1
	}
	if log, err = newLogger(opts, cfg.LogLevel); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	o, err := actions.NewPipeline(log, cfg, steps, actions.PipelineOptions{Out: out, Metrics: stats.NewMetrics()})
	if err != nil {
		_, _ = fmt.Fprintf(out, "Error: %v\n", err)
		log.Error(err)
		return 1
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return o.Run(ctx)
}

// loadConfig loads the env file then reads the configuration from the environment.
func loadConfig(log logger.Logger, opts runOptions) (*config.Config, error) {
	loaded, err := config.LoadEnvFiles(opts.envFile)
	if err != nil {
		return nil, err
	}
	if loaded != "" {
		log.Debug("loaded environment from ", loaded)
	}
	return config.FromEnv(time.Now())
}

// newLogger prefers the --log-level flag over the configured level.
func newLogger(opts runOptions, configured string) (*logger.LoggerImpl, error) {
	level := opts.logLevel
	if level == "" {
		level = configured
	}
	if level == "" {
		level = c.DefaultLogLevel
	}
	return logger.NewLogger(c.ServiceName, level, opts.stackDump)
}
