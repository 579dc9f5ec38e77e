package cmd

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/relloyd/sunglass-etl/actions"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version   = "0.1.0"
	buildDate = "2024-06-01T12:00+0000"
	exitCode  int
)

// globalOpts holds the persistent flags shared by every command.
var globalOpts runOptions

var rootCmd = &cobra.Command{
	Use:   c.ServiceName,
	Short: "Load the sunglass store Parquet exports into the warehouse and run the transformation package",
	Long: `Load the sunglass store Parquet exports from S3 into the raw dataset of the warehouse, then run the
dbt transformation package over the loaded tables.

Dimensions (users, products) are historised with SCD2 by default, facts (orders, interactions) are appended
incrementally using a cursor column and interaction types are upserted. Configuration is read from the
environment, optionally seeded from a .env file. With no command the full pipeline runs.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	Run:           pipelineCommand(actions.StepsAll),
}

func init() {
	cobra.EnableCommandSorting = false
	pf := rootCmd.PersistentFlags()
	switches.addFlag(pf, &globalOpts.logLevel, "log-level", "", "")
	switches.addFlag(pf, &globalOpts.envFile, "env-file", "", "")
	switches.addFlag(pf, &globalOpts.stackDump, "stack-dump", "false", "")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// The process exits with the pipeline's exit code.
func Execute() {
	if twelveFactorMode { // if we are running based on environment variables...
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(lambdaHandler)
			return
		}
		os.Exit(execute12FactorMode(context.Background(), os.Stdout))
	}
	if err := rootCmd.Execute(); err != nil {
		// Execute() prints the error.
		os.Exit(1)
	}
	os.Exit(exitCode)
}
