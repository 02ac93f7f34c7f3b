package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

type Provider interface {
	WithDB(func(db *sql.DB))

	InsertRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	// LatestStatistics returns the statistics of the newest runs, newest first.
	LatestStatistics(ctx context.Context, limit int) ([]stats.RunStatistics, error)
	FindRunByFingerprint(ctx context.Context, fingerprint string) (*RunSummary, error)
	DeleteRun(ctx context.Context, id string) error
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

func GetDbProvider(ctx context.Context, dbProvider DatabaseProvider) (Provider, error) {
	switch dbProvider {
	case PostGreSQL:
		return newPostGreSQLProvider(ctx, config.DefaultConfig)
	case SQLite, "":
		return newSqliteProvider(ctx, config.DefaultConfig)
	default:
		return nil, ValidationError("database provider", "invalid type '"+string(dbProvider)+"', only 'postgresql' and 'sqlite' are supported")
	}
}
