// Package estimate derives tolerances or baselines from previous runs, read
// either from a directory of parser outputs or from the history store.
package estimate

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/nicolastakashi/jtl-analytics/internal/estimator"
	"github.com/nicolastakashi/jtl-analytics/internal/render"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
)

type Flags struct {
	Output      string
	FromHistory bool
}

func RegisterFlags(fs *flag.FlagSet, configFile *string, f *Flags) {
	fs.StringVar(configFile, "config-file", "", "Path to the configuration file, it takes precedence over the command line flags.")
	fs.StringVar(&f.Output, "output", "", "Output JSON file. Defaults to standard output.")
	fs.StringVar(&f.Output, "o", "", "Shorthand for --output.")
	fs.BoolVar(&f.FromHistory, "from-history", false, "Use the latest runs of the history store as corpus instead of --dir.")
	fs.StringVar(&config.DefaultConfig.Database.Provider, "database-provider", config.DefaultConfig.Database.Provider, "The provider of database holding the run history. Supported values: postgresql, sqlite.")

	config.RegisterEstimatorFlags(fs)
	fs.StringVar(&config.DefaultConfig.Estimator.CorpusDir, "d", config.DefaultConfig.Estimator.CorpusDir, "Shorthand for --dir.")
	fs.StringVar(&config.DefaultConfig.Estimator.Mode, "t", config.DefaultConfig.Estimator.Mode, "Shorthand for --type.")
	db.RegisterSqliteFlags(fs)
	db.RegisterPostGreSQLFlags(fs)
}

func loadHistory(ctx context.Context) ([]stats.RunStatistics, error) {
	dbProvider, err := db.GetDbProvider(ctx, db.DatabaseProvider(config.DefaultConfig.Database.Provider))
	if err != nil {
		return nil, fmt.Errorf("create db provider: %w", err)
	}
	defer func() {
		if err := dbProvider.Close(); err != nil {
			slog.Error("error closing database provider", "err", err)
		}
	}()

	limit := db.ValidateLimit(config.DefaultConfig.Estimator.HistoryLimit, db.DefaultListLimit)
	return dbProvider.LatestStatistics(ctx, limit)
}

func Run(ctx context.Context, f Flags, reg prometheus.Registerer, stdout io.Writer) error {
	mode, err := estimator.ParseMode(config.DefaultConfig.Estimator.Mode)
	if err != nil {
		return err
	}

	est := estimator.New(reg,
		estimator.WithMargin(config.DefaultConfig.Estimator.Margin),
		estimator.WithWorkers(config.DefaultConfig.Estimator.Workers),
	)

	var runs []stats.RunStatistics
	if f.FromHistory {
		if runs, err = loadHistory(ctx); err != nil {
			return fmt.Errorf("load run history: %w", err)
		}
	} else {
		var skipped []error
		if runs, skipped, err = est.LoadDir(ctx, config.DefaultConfig.Estimator.CorpusDir); err != nil {
			return err
		}
		if len(skipped) > 0 {
			slog.Info("estimate.corpus.partial", "loaded", len(runs), "skipped", len(skipped))
		}
	}
	if len(runs) == 0 {
		slog.Warn("estimate.corpus.empty", "from_history", f.FromHistory)
	}

	result, err := est.Estimate(runs, mode)
	if err != nil {
		return err
	}
	slog.Debug("estimate.done", "mode", mode, "runs", len(runs), "margin", est.Margin())

	var buf bytes.Buffer
	if err := render.JSON(&buf, result); err != nil {
		return err
	}
	return stats.WriteOutput(f.Output, stdout, buf.Bytes())
}
