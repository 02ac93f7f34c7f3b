package db

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	pq "github.com/lib/pq"
	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

type PostGreSQLProvider struct {
	runStore
}

// Non-breaking alias for future rename migration
type PostgreSQLProvider = PostGreSQLProvider

func RegisterPostGreSQLFlags(flagSet *flag.FlagSet) {
	flagSet.DurationVar(&config.DefaultConfig.Database.PostgreSQL.DialTimeout, "postgresql-dial-timeout", 5*time.Second, "Timeout to dial postgresql.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Addr, "postgresql-addr", "localhost", "Address of the postgresql server.")
	flagSet.IntVar(&config.DefaultConfig.Database.PostgreSQL.Port, "postgresql-port", 5432, "Port of the postgresql server.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.User, "postgresql-user", os.Getenv("POSTGRESQL_USER"), "Username for the postgresql server, can also be set via POSTGRESQL_USER env var.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Password, "postgresql-password", os.Getenv("POSTGRESQL_PASSWORD"), "Password for the postgresql server, can also be set via POSTGRESQL_PASSWORD env var.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Database, "postgresql-database", os.Getenv("POSTGRESQL_DATABASE"), "Database for the postgresql server, can also be set via POSTGRESQL_DATABASE env var.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.SSLMode, "postgresql-sslmode", "disable", "SSL mode for the postgresql server.")
}

func newPostGreSQLProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	postgresConfig := cfg.Database.PostgreSQL

	psqlInfo := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d application_name=jtl-analytics",
		postgresConfig.Addr,
		postgresConfig.Port,
		postgresConfig.User,
		postgresConfig.Password,
		postgresConfig.Database,
		postgresConfig.SSLMode,
		int(postgresConfig.DialTimeout.Seconds()),
	)

	db, err := otelsql.Open("postgres", psqlInfo, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, ConnectionError(err, PostGreSQL, "open connection")
	}

	if postgresConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(postgresConfig.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if postgresConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(postgresConfig.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if postgresConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(postgresConfig.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ConnectionError(err, PostGreSQL, "ping database")
	}

	if err := runMigrations(ctx, db, PostGreSQL); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newPostGreSQLProviderFromDB(db), nil
}

func newPostGreSQLProviderFromDB(db *sql.DB) *PostGreSQLProvider {
	return &PostGreSQLProvider{
		runStore: runStore{
			db:              db,
			qc:              NewPostgreSQLQueryContext(),
			uniqueViolation: isPostgresUniqueViolation,
		},
	}
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}
