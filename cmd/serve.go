package cmd

import (
	"fmt"
	"net"
	"os"

	"github.com/relloyd/sunglass-etl/actions"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/orchestrator"
	"github.com/relloyd/sunglass-etl/stats"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service to trigger pipeline runs and expose their status and metrics",
	Long: `Start a web service to trigger pipeline runs and expose their status and metrics.
Routes: POST /runs[?steps=all|load|transform], GET /runs, GET /runs/{runId}/status,
POST /runs/{runId}/stop, GET /metrics, GET /health and POST /stop.
The configuration is read from the environment at the start of each run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := globalOpts.logLevel
		if level == "" {
			level = serveConfig.LogLevel
		}
		log, err := logger.NewServerLogger(c.ServiceName, level, globalOpts.stackDump, func() {})
		if err != nil {
			return err
		}
		serveConfig.LogLevel = level
		serveConfig.StackDumpOnPanic = globalOpts.stackDump
		serveConfig.Metrics = stats.NewMetrics()
		serveConfig.NewRun = newRunLauncher(log, globalOpts, serveConfig.Metrics)
		return actions.RunWebServer(log, &serveConfig)
	},
}

var serveConfig = actions.WebServerConfig{
	LogLevel: c.DefaultLogLevel,
	Scheme:   "http",
	Addr:     net.IP{0, 0, 0, 0},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd.Flags(), &serveConfig.Port, "port", c.DefaultListenPort, "")
}

// newRunLauncher reads the configuration for each run so changes to the env file and DEV_MODE suffixes apply.
func newRunLauncher(log logger.Logger, opts runOptions, metrics *stats.Metrics) actions.RunLauncher {
	return func(steps actions.Steps) (*orchestrator.Orchestrator, error) {
		cfg, err := loadConfig(log, opts)
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		return actions.NewPipeline(log, cfg, steps, actions.PipelineOptions{Out: os.Stdout, Metrics: metrics})
	}
}
