package db

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResults is returned when the requested run does not exist.
	ErrNoResults = errors.New("no results found")

	ErrInvalidScan = errors.New("invalid row scan")

	// ErrDuplicateRun is returned when a run with the same id or content is already stored.
	ErrDuplicateRun = errors.New("run already exists")

	// ErrStoreUnavailable marks failures to open or reach the run store.
	ErrStoreUnavailable = errors.New("run store unavailable")

	// ErrValidation marks runs and store settings rejected before any query.
	ErrValidation = errors.New("validation error")
)

// ErrorWithOperation prefixes err with the run store operation that failed.
func ErrorWithOperation(err error, operation string) error {
	if err == nil {
		return fmt.Errorf("%s: <nil>", operation)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// QueryError wraps a failed statement; details usually carries the run id.
func QueryError(err error, operation string, details string) error {
	if details != "" {
		return fmt.Errorf("%s %s: %w", operation, details, err)
	}
	return ErrorWithOperation(err, operation)
}

func ConnectionError(err error, engine DatabaseProvider, details string) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrStoreUnavailable, engine, details, err)
}

// MigrationError reports a schema migration of the runs tables that could not be applied.
func MigrationError(err error, engine DatabaseProvider) error {
	return fmt.Errorf("%w: %s: migrate runs schema: %w", ErrStoreUnavailable, engine, err)
}

func ValidationError(what string, reason string) error {
	return fmt.Errorf("%w for %s: %s", ErrValidation, what, reason)
}

func IsNoResults(err error) bool {
	return errors.Is(err, ErrNoResults)
}

func IsDuplicateRun(err error) bool {
	return errors.Is(err, ErrDuplicateRun)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
