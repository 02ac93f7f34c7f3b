package db

import (
	"time"

	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

type DatabaseProvider string

const (
	PostGreSQL DatabaseProvider = "postgresql"
	SQLite     DatabaseProvider = "sqlite"
)

// Run is one stored test run with its per API call statistics.
type Run struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Fingerprint string              `json:"fingerprint"`
	CreatedAt   time.Time           `json:"created_at"`
	Statistics  stats.RunStatistics `json:"statistics"`
}

type RunSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	APICalls    int       `json:"api_calls"`
}

func (r Run) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		Name:        r.Name,
		Fingerprint: r.Fingerprint,
		CreatedAt:   r.CreatedAt,
		APICalls:    len(r.Statistics),
	}
}

func (r Run) Validate() error {
	if r.ID == "" {
		return ValidationError("run id", "must not be empty")
	}
	if r.Fingerprint == "" {
		return ValidationError("run fingerprint", "must not be empty")
	}
	if r.CreatedAt.IsZero() {
		return ValidationError("run created_at", "must be set")
	}
	for _, apiCall := range r.Statistics.APICalls() {
		if err := r.Statistics[apiCall].Valid(); err != nil {
			return ValidationError("statistics of "+apiCall, err.Error())
		}
	}
	return nil
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)
