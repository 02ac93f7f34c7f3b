package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

// QueryBuildingContext holds the context for building SQL queries
type QueryBuildingContext struct {
	Dialect       string
	PlaceholderFn func(int) string
}

// NewPostgreSQLQueryContext creates a query context for PostgreSQL
func NewPostgreSQLQueryContext() *QueryBuildingContext {
	return &QueryBuildingContext{
		Dialect: "postgresql",
		PlaceholderFn: func(i int) string {
			return fmt.Sprintf("$%d", i)
		},
	}
}

// NewSQLiteQueryContext creates a query context for SQLite
func NewSQLiteQueryContext() *QueryBuildingContext {
	return &QueryBuildingContext{
		Dialect: "sqlite",
		PlaceholderFn: func(i int) string {
			return "?"
		},
	}
}

// Rebind replaces every '?' of query with the dialect placeholder.
func (qc *QueryBuildingContext) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(qc.PlaceholderFn(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateInsertPlaceholders builds the VALUES list of a multi-row INSERT
func (qc *QueryBuildingContext) CreateInsertPlaceholders(columns, rows int) string {
	var b strings.Builder
	n := 0
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < columns; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(qc.PlaceholderFn(n))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// ValidateLimit clamps limit into [1, MaxListLimit], using def when unset.
func ValidateLimit(limit int, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// CloseResource safely closes a resource and logs any errors
func CloseResource(closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Error("db.close_error", "err", err)
	}
}

// ScanSingleRow scans a single row with proper error handling
func ScanSingleRow(rows *sql.Rows, dest ...interface{}) error {
	defer CloseResource(rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ErrorWithOperation(err, "row iteration")
		}
		return ErrNoResults
	}

	if err := rows.Scan(dest...); err != nil {
		return ErrorWithOperation(fmt.Errorf("%w: %w", ErrInvalidScan, err), "scanning row")
	}

	if err := rows.Err(); err != nil {
		return ErrorWithOperation(err, "row iteration")
	}

	return nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		slog.Error("db.rollback_error", "err", err)
	}
}

// insertBatchSize keeps multi-row inserts below the SQLite bound variable limit.
const (
	insertBatchSize = 500
	runStatsColumns = 6
)

// runStore implements the run queries shared by every SQL dialect.
type runStore struct {
	db              *sql.DB
	qc              *QueryBuildingContext
	uniqueViolation func(error) bool
}

func (s *runStore) WithDB(f func(db *sql.DB)) {
	f(s.db)
}

func (s *runStore) Close() error {
	return s.db.Close()
}

func (s *runStore) InsertRun(ctx context.Context, run Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return QueryError(err, "begin insert run tx", "")
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx,
		s.qc.Rebind(`INSERT INTO runs (id, name, fingerprint, created_at) VALUES (?, ?, ?, ?)`),
		run.ID, run.Name, run.Fingerprint, run.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		if s.uniqueViolation != nil && s.uniqueViolation(err) {
			return fmt.Errorf("insert run %s: %w", run.ID, ErrDuplicateRun)
		}
		return QueryError(err, "insert run", run.ID)
	}

	apiCalls := run.Statistics.APICalls()
	for start := 0; start < len(apiCalls); start += insertBatchSize {
		batch := apiCalls[start:min(start+insertBatchSize, len(apiCalls))]
		values := make([]any, 0, len(batch)*runStatsColumns)
		for _, apiCall := range batch {
			st := run.Statistics[apiCall]
			values = append(values, run.ID, apiCall, st.Count, st.Success, st.Elapsed, st.Average)
		}
		query := `INSERT INTO run_stats (run_id, api_call, count, success, elapsed, average) VALUES ` +
			s.qc.CreateInsertPlaceholders(runStatsColumns, len(batch))
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return QueryError(err, "insert run statistics", run.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return QueryError(err, "commit insert run", run.ID)
	}
	return nil
}

func (s *runStore) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		s.qc.Rebind(`SELECT id, name, fingerprint, created_at FROM runs WHERE id = ?`), id)
	if err != nil {
		return nil, QueryError(err, "get run", id)
	}

	var (
		run       Run
		createdAt int64
	)
	if err := ScanSingleRow(rows, &run.ID, &run.Name, &run.Fingerprint, &createdAt); err != nil {
		return nil, ErrorWithOperation(err, "get run "+id)
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()

	statRows, err := s.db.QueryContext(ctx,
		s.qc.Rebind(`SELECT api_call, count, success, elapsed, average FROM run_stats WHERE run_id = ? ORDER BY api_call`), id)
	if err != nil {
		return nil, QueryError(err, "get run statistics", id)
	}
	defer CloseResource(statRows)

	run.Statistics = make(stats.RunStatistics)
	for statRows.Next() {
		apiCall, stat, err := scanStat(statRows)
		if err != nil {
			return nil, err
		}
		run.Statistics[apiCall] = stat
	}
	if err := statRows.Err(); err != nil {
		return nil, ErrorWithOperation(err, "row iteration")
	}
	return &run, nil
}

const summarySelect = `
	SELECT r.id, r.name, r.fingerprint, r.created_at, COUNT(s.api_call)
	FROM runs r
	LEFT JOIN run_stats s ON s.run_id = r.id
	%s
	GROUP BY r.id, r.name, r.fingerprint, r.created_at
	ORDER BY r.created_at DESC, r.id DESC
	LIMIT ?`

func (s *runStore) querySummaries(ctx context.Context, where string, args ...any) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.qc.Rebind(fmt.Sprintf(summarySelect, where)), args...)
	if err != nil {
		return nil, QueryError(err, "list runs", "")
	}
	defer CloseResource(rows)

	summaries := []RunSummary{}
	for rows.Next() {
		var (
			sum       RunSummary
			createdAt int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Fingerprint, &createdAt, &sum.APICalls); err != nil {
			return nil, ErrorWithOperation(fmt.Errorf("%w: %w", ErrInvalidScan, err), "scanning run summary")
		}
		sum.CreatedAt = time.UnixMilli(createdAt).UTC()
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrorWithOperation(err, "row iteration")
	}
	return summaries, nil
}

func (s *runStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	return s.querySummaries(ctx, "", ValidateLimit(limit, DefaultListLimit))
}

func (s *runStore) FindRunByFingerprint(ctx context.Context, fingerprint string) (*RunSummary, error) {
	summaries, err := s.querySummaries(ctx, "WHERE r.fingerprint = ?", fingerprint, 1)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNoResults
	}
	return &summaries[0], nil
}

func (s *runStore) LatestStatistics(ctx context.Context, limit int) ([]stats.RunStatistics, error) {
	rows, err := s.db.QueryContext(ctx, s.qc.Rebind(`
		SELECT s.run_id, s.api_call, s.count, s.success, s.elapsed, s.average
		FROM run_stats s
		JOIN (SELECT id, created_at FROM runs ORDER BY created_at DESC, id DESC LIMIT ?) r ON r.id = s.run_id
		ORDER BY r.created_at DESC, r.id DESC, s.api_call`),
		ValidateLimit(limit, DefaultListLimit),
	)
	if err != nil {
		return nil, QueryError(err, "latest statistics", "")
	}
	defer CloseResource(rows)

	var (
		out     []stats.RunStatistics
		current stats.RunStatistics
		lastID  string
	)
	for rows.Next() {
		var runID string
		var st statRow
		if err := rows.Scan(&runID, &st.apiCall, &st.count, &st.success, &st.elapsed, &st.average); err != nil {
			return nil, ErrorWithOperation(fmt.Errorf("%w: %w", ErrInvalidScan, err), "scanning run statistics")
		}
		if current == nil || runID != lastID {
			current = make(stats.RunStatistics)
			out = append(out, current)
			lastID = runID
		}
		current[st.apiCall] = st.aggregate()
	}
	if err := rows.Err(); err != nil {
		return nil, ErrorWithOperation(err, "row iteration")
	}
	return out, nil
}

func (s *runStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return QueryError(err, "begin delete run tx", "")
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, s.qc.Rebind(`DELETE FROM run_stats WHERE run_id = ?`), id); err != nil {
		return QueryError(err, "delete run statistics", id)
	}
	res, err := tx.ExecContext(ctx, s.qc.Rebind(`DELETE FROM runs WHERE id = ?`), id)
	if err != nil {
		return QueryError(err, "delete run", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return QueryError(err, "delete run", id)
	}
	if n == 0 {
		return ErrorWithOperation(ErrNoResults, "delete run "+id)
	}

	if err := tx.Commit(); err != nil {
		return QueryError(err, "commit delete run", id)
	}
	return nil
}

func (s *runStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMillis := cutoff.UTC().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, QueryError(err, "begin retention tx", "")
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx,
		s.qc.Rebind(`DELETE FROM run_stats WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`), cutoffMillis); err != nil {
		return 0, QueryError(err, "delete old run statistics", "")
	}
	res, err := tx.ExecContext(ctx, s.qc.Rebind(`DELETE FROM runs WHERE created_at < ?`), cutoffMillis)
	if err != nil {
		return 0, QueryError(err, "delete old runs", "")
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, QueryError(err, "delete old runs", "")
	}

	if err := tx.Commit(); err != nil {
		return 0, QueryError(err, "commit retention", "")
	}
	return deleted, nil
}

type statRow struct {
	apiCall string
	count   int
	success int
	elapsed int64
	average float64
}

func (r statRow) aggregate() stats.AggregateStat {
	a := stats.NewAggregateStat(r.count, r.success, r.elapsed)
	a.Average = r.average
	return a
}

func scanStat(rows *sql.Rows) (string, stats.AggregateStat, error) {
	var r statRow
	if err := rows.Scan(&r.apiCall, &r.count, &r.success, &r.elapsed, &r.average); err != nil {
		return "", stats.AggregateStat{}, ErrorWithOperation(fmt.Errorf("%w: %w", ErrInvalidScan, err), "scanning run statistics")
	}
	return r.apiCall, r.aggregate(), nil
}
