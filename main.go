package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"

	"github.com/nicolastakashi/jtl-analytics/cmd/api"
	"github.com/nicolastakashi/jtl-analytics/cmd/estimate"
	"github.com/nicolastakashi/jtl-analytics/cmd/ingest"
	"github.com/nicolastakashi/jtl-analytics/cmd/report"
	"github.com/nicolastakashi/jtl-analytics/internal/compare"
	"github.com/nicolastakashi/jtl-analytics/internal/config"
)

const (
	exitFailure          = 1
	exitThresholdsFailed = 2
)

// newLogger builds the process logger from the log section of the configuration.
func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level := promslog.NewLevel()
	if err := level.Set(cfg.Level); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	format := promslog.NewFormat()
	f := cfg.Format
	if f == "text" {
		f = "logfmt"
	}
	if err := format.Set(f); err != nil {
		return nil, fmt.Errorf("invalid log format: %w", err)
	}

	return promslog.New(&promslog.Config{Level: level, Format: format, Writer: os.Stderr}), nil
}

// loadConfig applies the configuration file and the environment on top of the parsed flags.
func loadConfig(configFile string) (*slog.Logger, error) {
	if configFile != "" {
		if err := config.LoadConfig(configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	logger, err := newLogger(config.DefaultConfig.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	slog.Debug("config.loaded", "file", configFile, "config", config.DefaultConfig.GetSanitizedConfig())
	return logger, nil
}

func withGoFlags(cmd *cobra.Command, register func(fs *flag.FlagSet)) *cobra.Command {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	register(fs)
	cmd.Flags().AddGoFlagSet(fs)
	return cmd
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "jtl-analytics",
		Short:         "Aggregate JMeter results and gate them against baselines and tolerances",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig(configFile)
			return err
		},
	}
	rootFlags := flag.NewFlagSet("root", flag.ContinueOnError)
	config.RegisterLogFlags(rootFlags)
	root.PersistentFlags().AddGoFlagSet(rootFlags)

	var reportFlags report.Flags
	root.AddCommand(
		withGoFlags(&cobra.Command{
			Use:   "parse <results.jtl>",
			Short: "Aggregate a results file into per API call statistics (JSON)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return report.RunParse(args[0], reportFlags, cmd.OutOrStdout())
			},
		}, func(fs *flag.FlagSet) { report.RegisterParseFlags(fs, &configFile, &reportFlags) }),

		withGoFlags(&cobra.Command{
			Use:   "pretty-print <results.jtl>",
			Short: "Print the statistics of a results file as a table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return report.RunPrettyPrint(args[0], reportFlags, cmd.OutOrStdout())
			},
		}, func(fs *flag.FlagSet) { report.RegisterPrettyPrintFlags(fs, &configFile, &reportFlags) }),

		withGoFlags(&cobra.Command{
			Use:   "compare <results.jtl>",
			Short: "Check a results file against a baseline and tolerances",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return report.RunCompare(args[0], reportFlags, cmd.OutOrStdout())
			},
		}, func(fs *flag.FlagSet) { report.RegisterCompareFlags(fs, &configFile, &reportFlags) }),
	)

	var estimateFlags estimate.Flags
	root.AddCommand(withGoFlags(&cobra.Command{
		Use:   "estimate",
		Short: "Estimate tolerances or baselines from previous runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return estimate.Run(cmd.Context(), estimateFlags, prometheus.NewRegistry(), cmd.OutOrStdout())
		},
	}, func(fs *flag.FlagSet) { estimate.RegisterFlags(fs, &configFile, &estimateFlags) }))

	var ingestFlags ingest.Flags
	root.AddCommand(withGoFlags(&cobra.Command{
		Use:   "ingest <results.jtl>",
		Short: "Store a results file in the run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ingest.Run(cmd.Context(), args[0], ingestFlags, prometheus.NewRegistry(), cmd.OutOrStdout())
		},
	}, func(fs *flag.FlagSet) { ingest.RegisterFlags(fs, &configFile, &ingestFlags) }))

	root.AddCommand(withGoFlags(&cobra.Command{
		Use:   "serve",
		Short: "Serve the run history over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.Run(slog.Default())
		},
	}, func(fs *flag.FlagSet) { api.RegisterFlags(fs, &configFile) }))

	return root
}

func exitCode(err error) int {
	if errors.Is(err, compare.ErrThresholdsExceeded) {
		return exitThresholdsFailed
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(exitCode(err))
	}
}
