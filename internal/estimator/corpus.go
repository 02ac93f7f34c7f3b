package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/nicolastakashi/jtl-analytics/internal/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var ErrCorpusFileUnreadable = errors.New("corpus file unreadable")

// CorpusFileError describes a corpus file that was skipped.
type CorpusFileError struct {
	Path string
	Err  error
}

func (e *CorpusFileError) Error() string {
	return fmt.Sprintf("corpus file %s skipped: %v", e.Path, e.Err)
}

func (e *CorpusFileError) Unwrap() error {
	return e.Err
}

func (e *CorpusFileError) Is(target error) bool {
	return target == ErrCorpusFileUnreadable
}

type corpusResult struct {
	run stats.RunStatistics
	err error
}

// LoadDir reads every regular file in dir as a persisted RunStatistics.
// Files that cannot be decoded or hold inconsistent counters are logged and
// returned in skipped; they never abort the load. Only an unreadable directory
// is an error. Runs come back in file name order. An empty dir means the
// working directory.
func (e *Estimator) LoadDir(ctx context.Context, dir string) (runs []stats.RunStatistics, skipped []error, err error) {
	ctx, span := otel.Tracer("estimator").Start(ctx, "load-corpus")
	defer span.End()

	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve working directory: %w", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read corpus directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	span.SetAttributes(attribute.Int("corpus.files", len(paths)))

	results := make([]corpusResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var run stats.RunStatistics
			if err := stats.ReadFile(path, &run); err != nil {
				results[i] = corpusResult{err: &CorpusFileError{Path: path, Err: err}}
				return nil
			}
			if err := run.Validate(); err != nil {
				results[i] = corpusResult{err: &CorpusFileError{Path: path, Err: err}}
				return nil
			}
			results[i] = corpusResult{run: run}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("load corpus: %w", err)
	}

	for _, res := range results {
		if res.err != nil {
			slog.Warn("estimator.corpus.skip", "err", res.err)
			e.corpusFilesTotal.WithLabelValues("skipped").Inc()
			skipped = append(skipped, res.err)
			continue
		}
		e.corpusFilesTotal.WithLabelValues("loaded").Inc()
		runs = append(runs, res.run)
	}

	slog.Debug("estimator.corpus.loaded", "dir", dir, "loaded", len(runs), "skipped", len(skipped))
	return runs, skipped, nil
}
