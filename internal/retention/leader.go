package retention

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// LockKey identifies the retention worker among PostgreSQL advisory locks.
const LockKey int64 = 0x726574656e74696f

// WithPGAdvisoryLeadership runs fn only while this process holds a session
// advisory lock, so a single replica sharing the database deletes runs.
// Connection and lock errors are retried every retry interval until ctx ends.
func WithPGAdvisoryLeadership(ctx context.Context, db *sql.DB, lockKey int64, retry time.Duration, fn func(context.Context)) {
	for {
		if ctx.Err() != nil {
			return
		}

		if leader(ctx, db, lockKey, fn) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// leader reports whether the lock was taken and fn ran.
func leader(ctx context.Context, db *sql.DB, lockKey int64, fn func(context.Context)) bool {
	conn, err := db.Conn(ctx)
	if err != nil {
		slog.Error("retention.leader.conn", "err", err)
		return false
	}
	defer func() { _ = conn.Close() }()

	var got bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&got); err != nil {
		slog.Error("retention.leader.lock", "err", err)
		return false
	}
	if !got {
		return false
	}

	slog.Debug("retention.leader.acquired", "key", lockKey)
	fn(ctx)

	// the connection goes back to the pool, so the session lock is released explicitly
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockKey); err != nil {
		slog.Warn("retention.leader.unlock", "err", err)
	}
	return true
}
