package config

import (
	"flag"
)

func RegisterLogFlags(fs *flag.FlagSet) {
	fs.StringVar(&DefaultConfig.Log.Level, "log-level", DefaultConfig.Log.Level, "Log level: debug, info, warn or error.")
	fs.StringVar(&DefaultConfig.Log.Format, "log-format", DefaultConfig.Log.Format, "Log format: text or json.")
}

func RegisterParserFlags(fs *flag.FlagSet) {
	fs.IntVar(&DefaultConfig.Parser.Columns.Elapsed, "elapsed-column", DefaultConfig.Parser.Columns.Elapsed, "Zero-based index of the elapsed time column in the JTL file.")
	fs.IntVar(&DefaultConfig.Parser.Columns.Label, "label-column", DefaultConfig.Parser.Columns.Label, "Zero-based index of the label (API call) column in the JTL file.")
	fs.IntVar(&DefaultConfig.Parser.Columns.Success, "success-column", DefaultConfig.Parser.Columns.Success, "Zero-based index of the success flag column in the JTL file.")
}

func RegisterOutputFlags(fs *flag.FlagSet) {
	fs.BoolVar(&DefaultConfig.Output.NoColor, "no-color", DefaultConfig.Output.NoColor, "Disable colored output.")
}

func RegisterEstimatorFlags(fs *flag.FlagSet) {
	fs.StringVar(&DefaultConfig.Estimator.Mode, "type", DefaultConfig.Estimator.Mode, "What to estimate: deviances or baseline.")
	fs.Float64Var(&DefaultConfig.Estimator.Margin, "margin", DefaultConfig.Estimator.Margin, "Slack added on top of the observed history, in percentage points.")
	fs.IntVar(&DefaultConfig.Estimator.Workers, "workers", DefaultConfig.Estimator.Workers, "Number of corpus files read concurrently.")
	fs.StringVar(&DefaultConfig.Estimator.CorpusDir, "dir", DefaultConfig.Estimator.CorpusDir, "Directory holding previous parser outputs. Defaults to the working directory.")
	fs.IntVar(&DefaultConfig.Estimator.HistoryLimit, "history-limit", DefaultConfig.Estimator.HistoryLimit, "Number of most recent stored runs used as corpus with --from-history.")
}

func RegisterIngestFlags(fs *flag.FlagSet) {
	fs.DurationVar(&DefaultConfig.Ingest.Timeout, "ingest-timeout", DefaultConfig.Ingest.Timeout, "Timeout to store a parsed run into the database.")
	fs.BoolVar(&DefaultConfig.Ingest.AllowDuplicates, "allow-duplicates", DefaultConfig.Ingest.AllowDuplicates, "Store runs whose content was already ingested.")
}

func RegisterServerFlags(fs *flag.FlagSet) {
	fs.StringVar(&DefaultConfig.Server.InsecureListenAddress, "insecure-listen-address", DefaultConfig.Server.InsecureListenAddress, "The address the HTTP server should listen on.")
	fs.Int64Var(&DefaultConfig.Server.MaxUploadBytes, "max-upload-bytes", DefaultConfig.Server.MaxUploadBytes, "Maximum size of an uploaded JTL file.")
}

func RegisterRetentionFlags(fs *flag.FlagSet) {
	fs.BoolVar(&DefaultConfig.Retention.Enabled, "retention-enabled", DefaultConfig.Retention.Enabled, "Periodically delete stored runs older than --retention-runs-max-age.")
	fs.DurationVar(&DefaultConfig.Retention.Interval, "retention-interval", DefaultConfig.Retention.Interval, "Interval between retention runs.")
	fs.DurationVar(&DefaultConfig.Retention.RunTimeout, "retention-run-timeout", DefaultConfig.Retention.RunTimeout, "Timeout of a single retention run.")
	fs.DurationVar(&DefaultConfig.Retention.RunsMaxAge, "retention-runs-max-age", DefaultConfig.Retention.RunsMaxAge, "Maximum age of a stored run.")
}

func RegisterMemoryLimitFlags(fs *flag.FlagSet) {
	fs.BoolVar(&DefaultConfig.MemoryLimit.Enabled, "memory-limit-enabled", DefaultConfig.MemoryLimit.Enabled, "Set GOMEMLIMIT from the cgroup memory limit.")
	fs.Float64Var(&DefaultConfig.MemoryLimit.Ratio, "memory-limit-ratio", DefaultConfig.MemoryLimit.Ratio, "Fraction of the cgroup memory limit used as GOMEMLIMIT.")
}
