package db

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteProvider struct {
	runStore
}

const configureSqliteStmt = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = normal;
	PRAGMA journal_size_limit = 6144000;
`

func RegisterSqliteFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&config.DefaultConfig.Database.SQLite.DatabasePath, "sqlite-database-path", "jtl-analytics.db", "Path to the sqlite database.")
}

func newSqliteProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	path := cfg.Database.SQLite.DatabasePath
	if path == "" {
		return nil, ValidationError("sqlite database path", "must not be empty")
	}

	db, err := otelsql.Open("sqlite", path, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, ConnectionError(err, SQLite, "open database")
	}
	// A single connection serialises writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ConnectionError(err, SQLite, "ping database")
	}

	if _, err := db.ExecContext(ctx, configureSqliteStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}

	if err := runMigrations(ctx, db, SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteProvider{
		runStore: runStore{
			db:              db,
			qc:              NewSQLiteQueryContext(),
			uniqueViolation: isSqliteUniqueViolation,
		},
	}, nil
}

func isSqliteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended result codes are not always enabled
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
