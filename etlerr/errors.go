// Package etlerr holds the error kinds surfaced to the orchestrator.
// Callers branch on the kind with KindOf or errors.As rather than on message text.
package etlerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindSchemaViolation
	KindLoad
	KindTransformation
	KindPackageNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:         "UnknownError",
	KindConfiguration:   "ConfigurationError",
	KindSchemaViolation: "SchemaViolation",
	KindLoad:            "LoadError",
	KindTransformation:  "TransformationError",
	KindPackageNotFound: "PackageNotFoundError",
}

func (k Kind) String() string {
	return kindNames[k]
}

// ConfigurationError reports missing or invalid startup configuration.
type ConfigurationError struct {
	Missing []string // names of missing environment variables or job settings
	Reason  string
}

func (e *ConfigurationError) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Reason != "":
		return fmt.Sprintf("configuration error: %v: missing %v", e.Reason, strings.Join(e.Missing, ", "))
	case len(e.Missing) > 0:
		return fmt.Sprintf("configuration error: missing required environment variables: %v", strings.Join(e.Missing, ", "))
	default:
		return fmt.Sprintf("configuration error: %v", e.Reason)
	}
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// SchemaViolation reports a row that failed entity validation.
type SchemaViolation struct {
	Entity     string
	Field      string
	Constraint string
	Value      interface{}
}

func (e *SchemaViolation) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("schema violation in %v: field %q %v (got %v)", e.Entity, e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("schema violation in %v: field %q %v", e.Entity, e.Field, e.Constraint)
}

// LoadError wraps the first table load failure of a run.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("load failed: %v", e.Err)
	}
	return fmt.Sprintf("load of table %v failed: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// TransformationError lists every model that failed, plus those skipped because an upstream model failed.
type TransformationError struct {
	Failed  []string
	Skipped []string
}

func (e *TransformationError) Error() string {
	msg := fmt.Sprintf("the following transformation models failed: %v", strings.Join(e.Failed, ", "))
	if len(e.Skipped) > 0 {
		msg = fmt.Sprintf("%v (skipped: %v)", msg, strings.Join(e.Skipped, ", "))
	}
	return msg
}

// PackageNotFoundError reports a missing transformation package.
type PackageNotFoundError struct {
	Location string
	Err      error
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("transformation package not found at %q", e.Location)
}

func (e *PackageNotFoundError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the outermost tagged error found in err's chain.
func KindOf(err error) Kind {
	var (
		cfgErr  *ConfigurationError
		schErr  *SchemaViolation
		loadErr *LoadError
		trErr   *TransformationError
		pkgErr  *PackageNotFoundError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &loadErr):
		return KindLoad
	case errors.As(err, &schErr):
		return KindSchemaViolation
	case errors.As(err, &pkgErr):
		return KindPackageNotFound
	case errors.As(err, &trErr):
		return KindTransformation
	}
	return KindUnknown
}
