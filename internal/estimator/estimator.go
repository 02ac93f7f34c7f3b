// Package estimator derives tolerances and baselines for API calls from a
// corpus of previous test runs.
package estimator

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/nicolastakashi/jtl-analytics/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const (
	DefaultMargin  = 5.0
	DefaultWorkers = 4
)

type Estimator struct {
	margin  float64
	workers int

	corpusFilesTotal *prometheus.CounterVec
}

type Option func(*Estimator)

// WithMargin sets the slack, in percentage points (and milliseconds for the
// baseline average), added on top of the observed history.
func WithMargin(margin float64) Option {
	return func(e *Estimator) {
		e.margin = margin
	}
}

// WithWorkers bounds how many corpus files are read concurrently.
func WithWorkers(n int) Option {
	return func(e *Estimator) {
		e.workers = n
	}
}

func New(reg prometheus.Registerer, opts ...Option) *Estimator {
	e := &Estimator{
		margin:  DefaultMargin,
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}

	e.corpusFilesTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimator_corpus_files_total",
			Help: "Total number of corpus files read by the estimator, by outcome",
		},
		[]string{"status"},
	)
	return e
}

func (e *Estimator) Margin() float64 {
	return e.margin
}

// history holds, per API call, one entry per run that contained it.
type history struct {
	successRates map[string][]float64
	averages     map[string][]float64
}

func gather(runs []stats.RunStatistics) history {
	h := history{
		successRates: make(map[string][]float64),
		averages:     make(map[string][]float64),
	}
	for _, run := range runs {
		for apiCall, stat := range run {
			if stat.Count <= 0 {
				slog.Warn("estimator.gather.skip", "api_call", apiCall, "reason", "count is zero")
				continue
			}
			h.successRates[apiCall] = append(h.successRates[apiCall], stat.SuccessRate())
			h.averages[apiCall] = append(h.averages[apiCall], stat.Average)
		}
	}
	// Sorting makes the floating point sums independent of the order runs were read in.
	for _, v := range h.successRates {
		sort.Float64s(v)
	}
	for _, v := range h.averages {
		sort.Float64s(v)
	}
	return h
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// maxRelativeDeviation returns max(|avg - x| / x). Zero samples cannot be
// divided by and are left out.
func maxRelativeDeviation(apiCall string, avg float64, values []float64) float64 {
	var maxDev float64
	for _, x := range values {
		if x == 0 {
			slog.Warn("estimator.deviance.zero_sample", "api_call", apiCall)
			continue
		}
		maxDev = math.Max(maxDev, math.Abs(avg-x)/x)
	}
	return maxDev
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Deviances computes, per API call, the minimum acceptable success rate and
// the maximum acceptable relative timing deviation.
func (e *Estimator) Deviances(runs []stats.RunStatistics) stats.Tolerances {
	h := gather(runs)
	out := make(stats.Tolerances, len(h.averages))
	for apiCall, averages := range h.averages {
		avgSuccess := mean(h.successRates[apiCall])
		avgElapsed := mean(averages)
		maxDev := maxRelativeDeviation(apiCall, avgElapsed, averages)

		out[apiCall] = stats.ToleranceSpec{
			RequiredSuccess: round2(math.Max(0, 100*avgSuccess-e.margin)),
			AllowedDeviance: round2(100*maxDev + e.margin),
		}
	}
	return out
}

// Baselines computes, per API call, the expected average elapsed time and
// success rate.
func (e *Estimator) Baselines(runs []stats.RunStatistics) stats.Baselines {
	h := gather(runs)
	out := make(stats.Baselines, len(h.averages))
	for apiCall, averages := range h.averages {
		avgSuccess := mean(h.successRates[apiCall])
		avgElapsed := mean(averages)

		out[apiCall] = stats.BaselineSpec{
			Average:    round2(avgElapsed + e.margin),
			SuccessPct: round2(math.Max(0, 100*avgSuccess-e.margin)),
		}
	}
	return out
}

// Estimate dispatches on mode. The result is a stats.Tolerances or a stats.Baselines.
func (e *Estimator) Estimate(runs []stats.RunStatistics, mode Mode) (any, error) {
	switch mode {
	case ModeDeviance:
		return e.Deviances(runs), nil
	case ModeBaseline:
		return e.Baselines(runs), nil
	default:
		return nil, fmt.Errorf("unsupported estimation mode: %s", mode)
	}
}
