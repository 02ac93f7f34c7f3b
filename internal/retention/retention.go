package retention

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker periodically deletes stored runs older than the configured maximum age.
type Worker struct {
	dbProvider db.Provider
	interval   time.Duration
	runTimeout time.Duration
	runsMaxAge time.Duration
	now        func() time.Time

	runDuration *prometheus.HistogramVec
	deletedRuns prometheus.Counter
}

func NewWorker(store db.Provider, cfg *config.Config, reg prometheus.Registerer) (*Worker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Retention.Interval <= 0 {
		return nil, fmt.Errorf("retention.interval must be positive (got: %v)", cfg.Retention.Interval)
	}

	if cfg.Retention.RunTimeout <= 0 {
		return nil, fmt.Errorf("retention.run_timeout must be positive (got: %v)", cfg.Retention.RunTimeout)
	}

	if cfg.Retention.RunsMaxAge <= 0 {
		return nil, fmt.Errorf("retention.runs_max_age must be positive (got: %v)", cfg.Retention.RunsMaxAge)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	w := &Worker{
		dbProvider: store,
		interval:   cfg.Retention.Interval,
		runTimeout: cfg.Retention.RunTimeout,
		runsMaxAge: cfg.Retention.RunsMaxAge,
		now:        time.Now,
	}

	w.runDuration = promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retention_run_duration_seconds",
		Help:    "Duration of retention runs in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	w.deletedRuns = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "retention_deleted_runs_total",
		Help: "Total number of stored runs deleted by retention",
	})

	return w, nil
}

// Run deletes expired runs immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	// 20% jitter, at least 1ns so rand.Int63n does not panic
	jitterBase := w.interval / 5
	if jitterBase == 0 {
		jitterBase = 1
	}
	jitter := time.Duration(rand.Int63n(int64(jitterBase)))
	ticker := time.NewTicker(w.interval + jitter)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if w.runsMaxAge <= 0 {
		return
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	cutoff := w.now().UTC().Add(-w.runsMaxAge)
	deleted, err := w.dbProvider.DeleteRunsBefore(runCtx, cutoff)
	if err != nil {
		slog.Error("retention.cleanup.failed", "err", err, "cutoff", cutoff)
		w.runDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		return
	}

	w.deletedRuns.Add(float64(deleted))
	slog.Info("retention.cleanup.complete", "deleted", deleted, "cutoff", cutoff)
	w.runDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
}
