// Package ingest stores a JTL results file as a run in the history store.
package ingest

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/nicolastakashi/jtl-analytics/internal/ingester"
	"github.com/nicolastakashi/jtl-analytics/internal/render"
	"github.com/prometheus/client_golang/prometheus"
)

type Flags struct {
	Name string
}

func RegisterFlags(fs *flag.FlagSet, configFile *string, f *Flags) {
	fs.StringVar(configFile, "config-file", "", "Path to the configuration file, it takes precedence over the command line flags.")
	fs.StringVar(&f.Name, "name", "", "Name of the stored run. Defaults to the results file name.")
	fs.StringVar(&config.DefaultConfig.Database.Provider, "database-provider", config.DefaultConfig.Database.Provider, "The provider of database to store runs in. Supported values: postgresql, sqlite.")

	config.RegisterParserFlags(fs)
	config.RegisterIngestFlags(fs)
	db.RegisterSqliteFlags(fs)
	db.RegisterPostGreSQLFlags(fs)
}

// Run parses resultsFile, stores it and prints the stored run summary as JSON.
func Run(ctx context.Context, resultsFile string, f Flags, reg prometheus.Registerer, stdout io.Writer) error {
	file, err := os.Open(resultsFile)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	defer file.Close()

	dbProvider, err := db.GetDbProvider(ctx, db.DatabaseProvider(config.DefaultConfig.Database.Provider))
	if err != nil {
		return fmt.Errorf("create db provider: %w", err)
	}
	defer func() {
		if err := dbProvider.Close(); err != nil {
			slog.Error("error closing database provider", "err", err)
		}
	}()

	name := f.Name
	if name == "" {
		name = filepath.Base(resultsFile)
	}

	runIngester := ingester.NewRunIngester(reg, dbProvider,
		ingester.WithTimeout(config.DefaultConfig.Ingest.Timeout),
		ingester.WithAllowDuplicates(config.DefaultConfig.Ingest.AllowDuplicates),
		ingester.WithColumns(config.DefaultConfig.Parser.Columns),
	)
	run, err := runIngester.Ingest(ctx, name, file)
	if err != nil {
		return fmt.Errorf("%s: %w", resultsFile, err)
	}

	var buf bytes.Buffer
	if err := render.JSON(&buf, run.Summary()); err != nil {
		return err
	}
	_, err = stdout.Write(buf.Bytes())
	return err
}
