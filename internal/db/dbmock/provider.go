// Package dbmock provides a testify mock of db.Provider.
package dbmock

import (
	"context"
	"database/sql"
	"time"

	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
	"github.com/stretchr/testify/mock"
)

type Provider struct {
	mock.Mock
}

var _ db.Provider = (*Provider)(nil)

func (m *Provider) WithDB(f func(db *sql.DB)) {
	m.Called(f)
}

func (m *Provider) InsertRun(ctx context.Context, run db.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *Provider) GetRun(ctx context.Context, id string) (*db.Run, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*db.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Provider) ListRuns(ctx context.Context, limit int) ([]db.RunSummary, error) {
	args := m.Called(ctx, limit)
	if v := args.Get(0); v != nil {
		return v.([]db.RunSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Provider) LatestStatistics(ctx context.Context, limit int) ([]stats.RunStatistics, error) {
	args := m.Called(ctx, limit)
	if v := args.Get(0); v != nil {
		return v.([]stats.RunStatistics), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Provider) FindRunByFingerprint(ctx context.Context, fingerprint string) (*db.RunSummary, error) {
	args := m.Called(ctx, fingerprint)
	if v := args.Get(0); v != nil {
		return v.(*db.RunSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Provider) DeleteRun(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *Provider) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Provider) Close() error {
	args := m.Called()
	return args.Error(0)
}
