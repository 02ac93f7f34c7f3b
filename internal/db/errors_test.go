package db

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		what     string
		reason   string
		expected string
	}{
		{
			name:     "unsupported provider",
			what:     "database provider",
			reason:   "invalid type 'mysql', only 'postgresql' and 'sqlite' are supported",
			expected: "validation error for database provider: invalid type 'mysql', only 'postgresql' and 'sqlite' are supported",
		},
		{
			name:     "empty run id",
			what:     "run id",
			reason:   "must not be empty",
			expected: "validation error for run id: must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidationError(tt.what, tt.reason)
			assert.EqualError(t, err, tt.expected)
			assert.True(t, IsValidation(err))
			assert.False(t, IsNoResults(err))
		})
	}
}

func TestErrorWithOperation(t *testing.T) {
	err := ErrorWithOperation(ErrNoResults, "delete run 0190")
	assert.EqualError(t, err, "delete run 0190: no results found")
	assert.True(t, IsNoResults(err))

	assert.EqualError(t, ErrorWithOperation(nil, "row iteration"), "row iteration: <nil>")
}

func TestQueryError(t *testing.T) {
	cause := errors.New("deadlock detected")
	tests := []struct {
		name     string
		details  string
		expected string
	}{
		{name: "with run id", details: "0190-a", expected: "insert run 0190-a: deadlock detected"},
		{name: "without details", expected: "insert run: deadlock detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := QueryError(cause, "insert run", tt.details)
			assert.EqualError(t, err, tt.expected)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("connection refused")
	err := ConnectionError(cause, PostGreSQL, "ping database")

	assert.EqualError(t, err, "run store unavailable: postgresql: ping database: connection refused")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestMigrationError(t *testing.T) {
	cause := errors.New("near \"TABLE\": syntax error")
	err := MigrationError(cause, SQLite)

	assert.EqualError(t, err, "run store unavailable: sqlite: migrate runs schema: near \"TABLE\": syntax error")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestIsDuplicateRun(t *testing.T) {
	assert.True(t, IsDuplicateRun(ErrDuplicateRun))
	assert.True(t, IsDuplicateRun(QueryError(ErrDuplicateRun, "insert run", "0190")))
	assert.False(t, IsDuplicateRun(ErrNoResults))
	assert.False(t, IsDuplicateRun(nil))
}

func TestCloseResource(t *testing.T) {
	var closer io.Closer
	assert.NotPanics(t, func() { CloseResource(closer) })
}
