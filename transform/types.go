package transform

import (
	"time"

	"github.com/relloyd/sunglass-etl/etlerr"
)

// Model statuses reported in ModelResult.Status.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Materializations supported by the native runner.
const (
	MaterializedView  = "view"
	MaterializedTable = "table"
)

const (
	ProjectFileName    = "dbt_project.yml"
	defaultModelPath   = "models"
	runResultsFileName = "target/run_results.json"
)

// ModelResult is the outcome of one model.
type ModelResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message"`
}

// Succeeded is true if the model ran without error.
func (m ModelResult) Succeeded() bool {
	return m.Status == StatusSuccess
}

// resultsError returns a TransformationError naming every failed and skipped model, or nil if none failed.
func resultsError(results []ModelResult) error {
	failed := make([]string, 0)
	skipped := make([]string, 0)
	for _, r := range results {
		switch r.Status {
		case StatusFailure:
			failed = append(failed, r.Name)
		case StatusSkipped:
			skipped = append(skipped, r.Name)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &etlerr.TransformationError{Failed: failed, Skipped: skipped}
}
