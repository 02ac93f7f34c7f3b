package retention

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lockQuery   = "SELECT pg_try_advisory_lock($1)"
	unlockQuery = "SELECT pg_advisory_unlock($1)"
)

func TestWithPGAdvisoryLeadership_RunsWhenLocked(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery(lockQuery).WithArgs(LockKey).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))
	mock.ExpectQuery(lockQuery).WithArgs(LockKey).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(unlockQuery).WithArgs(LockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	calls := 0
	WithPGAdvisoryLeadership(context.Background(), mockDB, LockKey, time.Millisecond, func(context.Context) {
		calls++
	})

	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithPGAdvisoryLeadership_StopsOnCanceledContext(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mockDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	WithPGAdvisoryLeadership(ctx, mockDB, LockKey, time.Millisecond, func(context.Context) { called = true })

	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithPGAdvisoryLeadership_RetriesAfterLockError(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery(lockQuery).WithArgs(LockKey).WillReturnError(assert.AnError)
	mock.ExpectQuery(lockQuery).WithArgs(LockKey).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(unlockQuery).WithArgs(LockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	calls := 0
	WithPGAdvisoryLeadership(context.Background(), mockDB, LockKey, time.Millisecond, func(context.Context) { calls++ })

	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithPGAdvisoryLeadership_LockErrorUntilCanceled(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mockDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	mock.ExpectQuery(lockQuery).WithArgs(LockKey).WillReturnError(assert.AnError)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	called := false
	WithPGAdvisoryLeadership(ctx, mockDB, LockKey, time.Hour, func(context.Context) { called = true })

	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}
