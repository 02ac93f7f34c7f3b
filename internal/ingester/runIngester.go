package ingester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/nicolastakashi/jtl-analytics/internal/jtl"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrEmptyRun is returned when a results file holds a header but no samples.
var ErrEmptyRun = errors.New("results file contains no samples")

const defaultIngestTimeout = 30 * time.Second

// RunIngester parses JTL result files and stores them as runs.
type RunIngester struct {
	dbProvider      db.Provider
	ingestTimeout   time.Duration
	allowDuplicates bool
	columns         jtl.Columns
	now             func() time.Time

	runsTotal    *prometheus.CounterVec
	samplesTotal prometheus.Counter
}

type RunIngesterOption func(*RunIngester)

func WithTimeout(timeout time.Duration) RunIngesterOption {
	return func(ri *RunIngester) {
		ri.ingestTimeout = timeout
	}
}

// WithAllowDuplicates stores runs even when a run with the same content fingerprint exists.
func WithAllowDuplicates(allow bool) RunIngesterOption {
	return func(ri *RunIngester) {
		ri.allowDuplicates = allow
	}
}

func WithColumns(columns jtl.Columns) RunIngesterOption {
	return func(ri *RunIngester) {
		ri.columns = columns
	}
}

func withClock(now func() time.Time) RunIngesterOption {
	return func(ri *RunIngester) {
		ri.now = now
	}
}

func NewRunIngester(reg prometheus.Registerer, dbProvider db.Provider, opts ...RunIngesterOption) *RunIngester {
	ri := &RunIngester{
		dbProvider:    dbProvider,
		ingestTimeout: defaultIngestTimeout,
		columns:       jtl.DefaultColumns,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(ri)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ri.runsTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "run_ingester_runs_total",
			Help: "Total number of ingested results files by outcome",
		},
		[]string{"status"},
	)
	ri.samplesTotal = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "run_ingester_samples_total",
			Help: "Total number of samples read from ingested results files",
		},
	)

	return ri
}

// Ingest parses r and stores its statistics as a new run. The content
// fingerprint is computed over the raw bytes while parsing; a second upload
// of the same file fails with db.ErrDuplicateRun unless duplicates are allowed.
func (i *RunIngester) Ingest(ctx context.Context, name string, r io.Reader) (*db.Run, error) {
	ctx, span := otel.Tracer("run-ingester").Start(ctx, "ingest")
	defer span.End()
	span.SetAttributes(attribute.String("run.name", name))

	run, err := i.ingest(ctx, name, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("run.id", run.ID), attribute.Int("run.api_calls", len(run.Statistics)))
	return run, nil
}

func (i *RunIngester) ingest(ctx context.Context, name string, r io.Reader) (*db.Run, error) {
	digest := xxhash.New()
	samples := 0
	statistics, err := jtl.Parse(io.TeeReader(r, digest),
		jtl.WithColumns(i.columns),
		jtl.WithSampleFunc(func(stats.Sample) { samples++ }),
	)
	if err != nil {
		i.runsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("parse results of %q: %w", name, err)
	}
	i.samplesTotal.Add(float64(samples))
	if samples == 0 {
		i.runsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("parse results of %q: %w", name, ErrEmptyRun)
	}
	fingerprint := fmt.Sprintf("%016x", digest.Sum64())

	ingestCtx, cancel := context.WithTimeout(ctx, i.ingestTimeout)
	defer cancel()

	if !i.allowDuplicates {
		existing, err := i.dbProvider.FindRunByFingerprint(ingestCtx, fingerprint)
		switch {
		case err == nil:
			i.runsTotal.WithLabelValues("duplicate").Inc()
			slog.Warn("ingester.run.duplicate", "name", name, "fingerprint", fingerprint, "existing", existing.ID)
			return nil, fmt.Errorf("content already stored as run %s: %w", existing.ID, db.ErrDuplicateRun)
		case !db.IsNoResults(err):
			i.runsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("lookup fingerprint %s: %w", fingerprint, err)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		i.runsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	run := db.Run{
		ID:          id.String(),
		Name:        name,
		Fingerprint: fingerprint,
		CreatedAt:   i.now().UTC(),
		Statistics:  statistics,
	}
	if err := i.dbProvider.InsertRun(ingestCtx, run); err != nil {
		if db.IsDuplicateRun(err) {
			i.runsTotal.WithLabelValues("duplicate").Inc()
		} else {
			i.runsTotal.WithLabelValues("failed").Inc()
		}
		return nil, fmt.Errorf("store run %s: %w", run.ID, err)
	}

	i.runsTotal.WithLabelValues("stored").Inc()
	slog.Info("ingester.run.stored", "id", run.ID, "name", name, "api_calls", len(statistics), "samples", samples)
	return &run, nil
}
