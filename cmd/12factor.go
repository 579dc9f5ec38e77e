package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/relloyd/sunglass-etl/actions"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/helper"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set before other init() functions register flags, so they can
// read their values from the environment instead.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(c.EnvVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		lambdaMode = strings.ToLower(mode) == "lambda"
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

var (
	twelveFactorMode bool // true if os env var EnvVarTwelveFactorMode is set
	lambdaMode       bool // true if EnvVarTwelveFactorMode is "lambda"
)

// twelveFactorSteps maps the values of EnvVarCommand to the steps they run.
var twelveFactorSteps = map[string]actions.Steps{
	"run":       actions.StepsAll,
	"load":      actions.StepsLoadOnly,
	"transform": actions.StepsTransformOnly,
}

// execute12FactorMode runs the command named by EnvVarCommand (default run) and returns the exit code.
func execute12FactorMode(ctx context.Context, out io.Writer) int {
	command := strings.ToLower(helper.ReadValueFromEnvWithDefault(c.EnvVarCommand, "run"))
	steps, ok := twelveFactorSteps[command]
	if !ok {
		_, _ = fmt.Fprintf(out, "invalid value for %v: %q (use run, load or transform)\n", c.EnvVarCommand, command)
		return 1
	}
	return runPipeline(ctx, steps, globalOpts, out)
}

// lambdaHandler runs the pipeline once per invocation.
func lambdaHandler(ctx context.Context) error {
	if code := execute12FactorMode(ctx, os.Stdout); code != 0 {
		return fmt.Errorf("%v pipeline failed with exit code %v", c.ServiceName, code)
	}
	return nil
}
