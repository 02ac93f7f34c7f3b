package api

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/rs/cors"

	"github.com/nicolastakashi/jtl-analytics/api/routes"
	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/nicolastakashi/jtl-analytics/internal/estimator"
	"github.com/nicolastakashi/jtl-analytics/internal/ingester"
	"github.com/nicolastakashi/jtl-analytics/internal/retention"
	"github.com/nicolastakashi/jtl-analytics/internal/tracing"
)

const leaderRetryInterval = 2 * time.Second

func RegisterFlags(fs *flag.FlagSet, configFile *string) {
	fs.StringVar(configFile, "config-file", "", "Path to the configuration file, it takes precedence over the command line flags.")
	fs.StringVar(&config.DefaultConfig.Database.Provider, "database-provider", config.DefaultConfig.Database.Provider, "The provider of database to use for storing runs. Supported values: postgresql, sqlite.")

	db.RegisterPostGreSQLFlags(fs)
	db.RegisterSqliteFlags(fs)
	config.RegisterServerFlags(fs)
	config.RegisterParserFlags(fs)
	config.RegisterIngestFlags(fs)
	config.RegisterEstimatorFlags(fs)
	config.RegisterMemoryLimitFlags(fs)
	config.RegisterRetentionFlags(fs)
}

func setMemoryLimit(logger *slog.Logger) {
	if !config.DefaultConfig.MemoryLimit.Enabled {
		return
	}
	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(config.DefaultConfig.MemoryLimit.Ratio),
		memlimit.WithProvider(memlimit.FromCgroup),
		memlimit.WithLogger(logger),
	)
	if err != nil {
		slog.Warn("unable to set memory limit", "err", err)
		return
	}
	slog.Info("memory limit set", "limit", limit, "ratio", config.DefaultConfig.MemoryLimit.Ratio)
}

func Run(logger *slog.Logger) error {
	setMemoryLimit(logger)

	tp, err := tracing.Setup(context.Background(), logger, config.DefaultConfig)
	if err != nil {
		slog.Error("unable to set up tracing", "err", err)
		return fmt.Errorf("set up tracing: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("error shutting down tracer provider", "err", err)
			}
		}()
	}

	mode, err := estimator.ParseMode(config.DefaultConfig.Estimator.Mode)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector("jtl_analytics"),
	)

	var g run.Group

	dbProvider, err := db.GetDbProvider(context.Background(), db.DatabaseProvider(config.DefaultConfig.Database.Provider))
	if err != nil {
		slog.Error("unable to create db provider", "err", err)
		return fmt.Errorf("create db provider: %w", err)
	}
	defer func() {
		if err := dbProvider.Close(); err != nil {
			slog.Error("error closing database provider", "err", err)
		}
	}()

	runIngester := ingester.NewRunIngester(
		reg,
		dbProvider,
		ingester.WithTimeout(config.DefaultConfig.Ingest.Timeout),
		ingester.WithAllowDuplicates(config.DefaultConfig.Ingest.AllowDuplicates),
		ingester.WithColumns(config.DefaultConfig.Parser.Columns),
	)

	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		routesHandler, err := routes.NewRoutes(
			routes.WithDBProvider(dbProvider),
			routes.WithRunIngester(runIngester),
			routes.WithEstimator(estimator.New(reg,
				estimator.WithMargin(config.DefaultConfig.Estimator.Margin),
				estimator.WithWorkers(config.DefaultConfig.Estimator.Workers),
			), mode),
			routes.WithHistoryLimit(config.DefaultConfig.Estimator.HistoryLimit),
			routes.WithMaxUploadBytes(config.DefaultConfig.Server.MaxUploadBytes),
			routes.WithHandlers(reg),
		)
		if err != nil {
			slog.Error("unable to create routes", "err", err)
			return fmt.Errorf("create routes: %w", err)
		}

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			routesHandler.ServeHTTP(w, r)
		})

		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   config.DefaultConfig.CORS.AllowedOrigins,
			AllowedMethods:   config.DefaultConfig.CORS.AllowedMethods,
			AllowedHeaders:   config.DefaultConfig.CORS.AllowedHeaders,
			AllowCredentials: config.DefaultConfig.CORS.AllowCredentials,
			MaxAge:           config.DefaultConfig.CORS.MaxAge,
		}).Handler(handler)

		l, err := net.Listen("tcp", config.DefaultConfig.Server.InsecureListenAddress)
		if err != nil {
			slog.Error("failed to listen on address", "err", err)
			return fmt.Errorf("listen: %w", err)
		}

		srv := &http.Server{
			Handler:           corsHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Add(func() error {
			slog.Info("listening insecurely", "addr", l.Addr())
			if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
				slog.Error("server stopped", "err", err)
				return err
			}
			return nil
		}, func(error) {
			slog.Info("stopping HTTP Server")
			cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Error("error shutting down server", "err", err)
			}
		})
	}

	if config.DefaultConfig.Retention.Enabled {
		retWorker, err := retention.NewWorker(dbProvider, config.DefaultConfig, reg)
		if err != nil {
			slog.Error("unable to create retention worker", "err", err)
		} else {
			switch db.DatabaseProvider(config.DefaultConfig.Database.Provider) {
			case db.PostGreSQL:
				dbProvider.WithDB(func(d *sql.DB) {
					ctx, cancel := context.WithCancel(context.Background())
					g.Add(func() error {
						retention.WithPGAdvisoryLeadership(ctx, d, retention.LockKey, leaderRetryInterval, retWorker.Run)
						return nil
					}, func(err error) { cancel() })
				})
			default:
				ctx, cancel := context.WithCancel(context.Background())
				g.Add(func() error { retWorker.Run(ctx); return nil }, func(err error) { cancel() })
			}
		}
	}

	{
		g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))
	}

	if err := g.Run(); err != nil {
		if !errors.As(err, &run.SignalError{}) {
			return err
		}
	}
	return nil
}
