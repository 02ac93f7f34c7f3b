// Package report implements the parse, pretty-print and compare commands over
// a single JTL results file.
package report

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/nicolastakashi/jtl-analytics/internal/compare"
	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/nicolastakashi/jtl-analytics/internal/jtl"
	"github.com/nicolastakashi/jtl-analytics/internal/render"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

// Flags holds the per-invocation file arguments of the report commands.
type Flags struct {
	Output   string
	Baseline string
	Expected string
}

// stringVarP registers a long flag and its one letter alias on the same variable.
func stringVarP(fs *flag.FlagSet, p *string, name, short, usage string) {
	fs.StringVar(p, name, "", usage)
	fs.StringVar(p, short, "", "Shorthand for --"+name+".")
}

func registerOutputFlag(fs *flag.FlagSet, f *Flags) {
	stringVarP(fs, &f.Output, "output", "o", "Output file to write the result to. Defaults to standard output.")
}

func RegisterParseFlags(fs *flag.FlagSet, configFile *string, f *Flags) {
	fs.StringVar(configFile, "config-file", "", "Path to the configuration file, it takes precedence over the command line flags.")
	registerOutputFlag(fs, f)
	config.RegisterParserFlags(fs)
}

func RegisterPrettyPrintFlags(fs *flag.FlagSet, configFile *string, f *Flags) {
	RegisterParseFlags(fs, configFile, f)
	stringVarP(fs, &f.Baseline, "baseline", "b", "Baseline or parser output file to compare with.")
	config.RegisterOutputFlags(fs)
	fs.BoolVar(&config.DefaultConfig.Output.NoColor, "n", config.DefaultConfig.Output.NoColor, "Shorthand for --no-color.")
}

func RegisterCompareFlags(fs *flag.FlagSet, configFile *string, f *Flags) {
	RegisterPrettyPrintFlags(fs, configFile, f)
	stringVarP(fs, &f.Expected, "expected", "e", "Tolerance file with the required success rate and allowed deviance per API call.")
}

func parse(resultsFile string) (stats.RunStatistics, error) {
	current, err := jtl.ParseFile(resultsFile, jtl.WithColumns(config.DefaultConfig.Parser.Columns))
	if err != nil {
		return nil, err
	}
	slog.Debug("report.parsed", "file", resultsFile, "api_calls", len(current))
	return current, nil
}

func renderOptions(f Flags, stdout io.Writer) render.Options {
	if f.Output != "" {
		return render.Options{}
	}
	return render.Options{Color: render.DetectColor(stdout, config.DefaultConfig.Output.NoColor)}
}

// RunParse writes the aggregated statistics of resultsFile as JSON.
func RunParse(resultsFile string, f Flags, stdout io.Writer) error {
	current, err := parse(resultsFile)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := render.JSON(&buf, current); err != nil {
		return err
	}
	return stats.WriteOutput(f.Output, stdout, buf.Bytes())
}

// RunPrettyPrint writes a table of the statistics, next to the baseline when one is given.
func RunPrettyPrint(resultsFile string, f Flags, stdout io.Writer) error {
	current, err := parse(resultsFile)
	if err != nil {
		return err
	}

	var baseline stats.Baselines
	if f.Baseline != "" {
		if err := stats.ReadFile(f.Baseline, &baseline); err != nil {
			return fmt.Errorf("read baseline: %w", err)
		}
		if baseline == nil {
			baseline = stats.Baselines{}
		}
	}

	var buf bytes.Buffer
	if err := render.Table(&buf, current, baseline, renderOptions(f, stdout)); err != nil {
		return err
	}
	return stats.WriteOutput(f.Output, stdout, buf.Bytes())
}

// RunCompare checks resultsFile against the baseline and tolerance files. It
// returns an error wrapping compare.ErrThresholdsExceeded when any check fails.
func RunCompare(resultsFile string, f Flags, stdout io.Writer) error {
	if f.Baseline == "" || f.Expected == "" {
		return fmt.Errorf("compare needs both a baseline (-b) and an expected tolerance file (-e)")
	}

	current, err := parse(resultsFile)
	if err != nil {
		return err
	}

	var baseline stats.Baselines
	if err := stats.ReadFile(f.Baseline, &baseline); err != nil {
		return fmt.Errorf("read baseline: %w", err)
	}
	var tolerance stats.Tolerances
	if err := stats.ReadFile(f.Expected, &tolerance); err != nil {
		return fmt.Errorf("read expected tolerances: %w", err)
	}

	report, err := compare.Compare(current, baseline, tolerance)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := render.Report(&buf, report, renderOptions(f, stdout)); err != nil {
		return err
	}
	if err := stats.WriteOutput(f.Output, stdout, buf.Bytes()); err != nil {
		return err
	}

	if report.Passed() {
		fmt.Fprintf(stdout, "All results in file: %s are in limits of allowed deviations.\n", resultsFile)
		return nil
	}
	slog.Warn("report.compare.failed", "file", resultsFile, "failures", report.Failures)
	return report.Err()
}
