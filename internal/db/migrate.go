package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	goose "github.com/pressly/goose/v3"
)

//go:embed migrations/**/*.sql
var migrationsFS embed.FS

type migrationSet struct {
	dialect goose.Dialect
	dir     string
}

var migrationSets = map[DatabaseProvider]migrationSet{
	PostGreSQL: {dialect: goose.DialectPostgres, dir: "migrations/postgresql"},
	SQLite:     {dialect: goose.DialectSQLite3, dir: "migrations/sqlite"},
}

// runMigrations brings the runs schema of the given engine up to date.
func runMigrations(ctx context.Context, db *sql.DB, engine DatabaseProvider) error {
	set, ok := migrationSets[engine]
	if !ok {
		return ValidationError("migration engine", fmt.Sprintf("unsupported engine %q", engine))
	}

	dir, err := fs.Sub(migrationsFS, set.dir)
	if err != nil {
		return fmt.Errorf("open %s migrations: %w", engine, err)
	}
	provider, err := goose.NewProvider(set.dialect, db, dir)
	if err != nil {
		return fmt.Errorf("create %s migration provider: %w", engine, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return MigrationError(err, engine)
	}
	for _, r := range results {
		slog.Debug("db.migration.applied", "engine", engine, "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}
