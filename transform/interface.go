package transform

import (
	"context"
)

// Runner executes a transformation package against a dataset.
// Results are returned for every model even when an error is returned; an *etlerr.TransformationError
// means at least one model failed and *etlerr.PackageNotFoundError that the package is missing.
type Runner interface {
	RunTransform(ctx context.Context, packageLocation string, datasetName string) ([]ModelResult, error)
}
