package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stats"
)

// DbtRunner runs the dbt executable in the package directory and reads its run results.
type DbtRunner struct {
	Log        logger.Logger
	Executable string
	Env        []string // extra KEY=VALUE pairs for the dbt process.
	Metrics    *stats.Metrics
}

func NewDbtRunner(log logger.Logger, executable string, env []string, metrics *stats.Metrics) *DbtRunner {
	if executable == "" {
		executable = c.DefaultDbtExecutable
	}
	return &DbtRunner{Log: log, Executable: executable, Env: env, Metrics: metrics}
}

type dbtRunResults struct {
	Results []struct {
		UniqueID      string  `json:"unique_id"`
		Status        string  `json:"status"`
		ExecutionTime float64 `json:"execution_time"`
		Message       *string `json:"message"`
	} `json:"results"`
}

// RunTransform runs "dbt run" with the target dataset exported as DBT_DATASET. A non-zero exit is not an
// error by itself: the run results decide which models failed.
func (r *DbtRunner) RunTransform(ctx context.Context, packageLocation string, datasetName string) ([]ModelResult, error) {
	if err := checkPackage(packageLocation); err != nil {
		return nil, err
	}
	resultsPath := filepath.Join(packageLocation, filepath.FromSlash(runResultsFileName))
	if err := os.Remove(resultsPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "error removing previous run results")
	}
	cmd := exec.CommandContext(ctx, r.Executable, "run", "--project-dir", ".")
	cmd.Dir = packageLocation
	cmd.Env = append(append(os.Environ(), r.Env...), c.EnvVarDbtDataset+"="+datasetName)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	r.Log.Info("running ", r.Executable, " in ", packageLocation)
	runErr := cmd.Run()
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line != "" {
			r.Log.Debug("dbt: ", line)
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	data, err := os.ReadFile(resultsPath)
	if err != nil {
		if runErr != nil {
			return nil, errors.Wrapf(runErr, "dbt run failed without results: %v", lastLines(out.String(), 5))
		}
		return nil, errors.Wrap(err, "error reading dbt run results")
	}
	results, err := parseRunResults(data)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if r.Metrics != nil {
			r.Metrics.ObserveModel(res.Name, res.Status, res.Duration)
		}
	}
	if err = resultsError(results); err != nil {
		return results, err
	}
	if runErr != nil {
		return results, errors.Wrap(runErr, "dbt run failed")
	}
	return results, nil
}

// parseRunResults maps dbt node results onto ModelResults. Test and seed nodes are ignored.
func parseRunResults(data []byte) ([]ModelResult, error) {
	rr := dbtRunResults{}
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, errors.Wrap(err, "error parsing dbt run results")
	}
	retval := make([]ModelResult, 0, len(rr.Results))
	for _, res := range rr.Results {
		parts := strings.Split(res.UniqueID, ".")
		if len(parts) < 3 || parts[0] != "model" {
			continue
		}
		m := ModelResult{
			Name:     parts[len(parts)-1],
			Duration: time.Duration(res.ExecutionTime * float64(time.Second)),
		}
		if res.Message != nil {
			m.Message = *res.Message
		}
		switch strings.ToLower(res.Status) {
		case "success", "pass":
			m.Status = StatusSuccess
		case "skipped":
			m.Status = StatusSkipped
		default:
			m.Status = StatusFailure
		}
		retval = append(retval, m)
	}
	return retval, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
