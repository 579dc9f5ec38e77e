package cmd

import (
	"bytes"
	"context"
	"testing"

	c "github.com/relloyd/sunglass-etl/constants"
)

func TestSetupTwelveFactorMode(t *testing.T) {
	t.Cleanup(setupTwelveFactorMode)
	t.Setenv(c.EnvVarTwelveFactorMode, "")
	setupTwelveFactorMode()
	if twelveFactorMode || lambdaMode {
		t.Fatal("expected twelveFactorMode and lambdaMode to be false")
	}
	t.Setenv(c.EnvVarTwelveFactorMode, "1")
	setupTwelveFactorMode()
	if !twelveFactorMode || lambdaMode {
		t.Fatal("expected twelveFactorMode true and lambdaMode false")
	}
	t.Setenv(c.EnvVarTwelveFactorMode, "Lambda")
	setupTwelveFactorMode()
	if !twelveFactorMode || !lambdaMode {
		t.Fatal("expected twelveFactorMode and lambdaMode to be true")
	}
}

func TestExecute12FactorModeRejectsUnknownCommand(t *testing.T) {
	t.Setenv(c.EnvVarCommand, "sync")
	out := &bytes.Buffer{}
	if code := execute12FactorMode(context.Background(), out); code != 1 {
		t.Fatalf("expected exit code 1; got %v", code)
	}
	if !bytes.Contains(out.Bytes(), []byte(c.EnvVarCommand)) {
		t.Fatalf("expected the error to name %v; got %q", c.EnvVarCommand, out.String())
	}
}

func TestLambdaHandlerReturnsErrorOnFailure(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(c.EnvVarCommand, "transform") // the package directory does not exist
	if err := lambdaHandler(context.Background()); err == nil {
		t.Fatal("expected an error from a failed run")
	}
}
