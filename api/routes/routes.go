package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/metalmatze/signal/server/signalhttp"
	"github.com/nicolastakashi/jtl-analytics/api/models"
	"github.com/nicolastakashi/jtl-analytics/api/response"
	"github.com/nicolastakashi/jtl-analytics/internal/compare"
	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/nicolastakashi/jtl-analytics/internal/estimator"
	"github.com/nicolastakashi/jtl-analytics/internal/ingester"
	"github.com/nicolastakashi/jtl-analytics/internal/jtl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

const readinessTimeout = 5 * time.Second

type routes struct {
	mux *http.ServeMux

	dbProvider     db.Provider
	runIngester    *ingester.RunIngester
	estimator      *estimator.Estimator
	defaultMode    estimator.Mode
	historyLimit   int
	maxUploadBytes int64
}

type Option func(*routes)

func WithDBProvider(dbProvider db.Provider) Option {
	return func(r *routes) {
		r.dbProvider = dbProvider
	}
}

func WithRunIngester(runIngester *ingester.RunIngester) Option {
	return func(r *routes) {
		r.runIngester = runIngester
	}
}

// WithEstimator sets the estimator and the mode used when a request does not name one.
func WithEstimator(e *estimator.Estimator, defaultMode estimator.Mode) Option {
	return func(r *routes) {
		r.estimator = e
		r.defaultMode = defaultMode
	}
}

func WithHistoryLimit(limit int) Option {
	return func(r *routes) {
		r.historyLimit = limit
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(r *routes) {
		r.maxUploadBytes = n
	}
}

func WithHandlers(registry *prometheus.Registry) Option {
	return func(r *routes) {
		i := signalhttp.NewHandlerInstrumenter(registry, []string{"handler"})
		instrument := func(name string, h http.HandlerFunc) http.Handler {
			return i.NewHandler(
				prometheus.Labels{"handler": name},
				otelhttp.NewHandler(logRequests(h), name),
			)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("GET /livez", http.HandlerFunc(livez))
		mux.Handle("GET /readyz", http.HandlerFunc(r.readyz))
		mux.Handle("GET /api/v1/runs", instrument("list_runs", r.listRuns))
		mux.Handle("POST /api/v1/runs", instrument("create_run", r.createRun))
		mux.Handle("GET /api/v1/runs/{id}", instrument("get_run", r.getRun))
		mux.Handle("DELETE /api/v1/runs/{id}", instrument("delete_run", r.deleteRun))
		mux.Handle("GET /api/v1/estimates", instrument("estimates", r.estimates))
		mux.Handle("POST /api/v1/compare", instrument("compare", r.compare))
		r.mux = mux
	}
}

func NewRoutes(opts ...Option) (*routes, error) {
	r := &routes{
		mux:            http.NewServeMux(),
		historyLimit:   20,
		maxUploadBytes: 64 << 20,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.dbProvider == nil {
		return nil, fmt.Errorf("routes: a database provider is required")
	}
	if r.runIngester == nil {
		r.runIngester = ingester.NewRunIngester(prometheus.NewRegistry(), r.dbProvider)
	}
	if r.estimator == nil {
		r.estimator = estimator.New(nil)
	}

	return r, nil
}

func (r *routes) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func logRequests(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rw := response.NewResponseWriter(w)
		next(rw, req)
		slog.Debug("api.request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rw.GetStatusCode(),
			"bytes", rw.GetBodySize(),
			"duration", time.Since(start),
		)
	}
}

func getQueryParamAsInt(req *http.Request, param string, defaultValue int) (int, error) {
	value := req.URL.Query().Get(param)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func writeJSONResponse(req *http.Request, w http.ResponseWriter, status int, response interface{}) {
	b, err := json.Marshal(response)
	if err != nil {
		slog.Error("failed to encode JSON response", "err", err)
		writeErrorResponse(req, w, fmt.Errorf("failed to encode response: %w", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func writeErrorResponse(r *http.Request, w http.ResponseWriter, err error, status int) {
	response := struct {
		Error   string `json:"error"`
		Code    int    `json:"code"`
		TraceID string `json:"traceId,omitempty"`
	}{
		Error: err.Error(),
		Code:  status,
	}
	if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.HasTraceID() {
		response.TraceID = sc.TraceID().String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err = json.NewEncoder(w).Encode(response)
	if err != nil {
		slog.Error("failed to encode JSON response", "err", err)
	}
}

func livez(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (r *routes) readyz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), readinessTimeout)
	defer cancel()

	var err error
	r.dbProvider.WithDB(func(d *sql.DB) {
		err = d.PingContext(ctx)
	})
	if err != nil {
		writeErrorResponse(req, w, fmt.Errorf("database not reachable: %w", err), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (r *routes) listRuns(w http.ResponseWriter, req *http.Request) {
	limit, err := getQueryParamAsInt(req, "limit", db.DefaultListLimit)
	if err != nil {
		writeErrorResponse(req, w, fmt.Errorf("invalid limit: %w", err), http.StatusBadRequest)
		return
	}

	runs, err := r.dbProvider.ListRuns(req.Context(), db.ValidateLimit(limit, db.DefaultListLimit))
	if err != nil {
		slog.Error("unable to list runs", "err", err)
		writeErrorResponse(req, w, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []db.RunSummary{}
	}
	writeJSONResponse(req, w, http.StatusOK, models.RunList{Runs: runs})
}

func (r *routes) createRun(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("name")
	if name == "" {
		name = "upload " + time.Now().UTC().Format(time.RFC3339)
	}

	body := http.MaxBytesReader(w, req.Body, r.maxUploadBytes)
	run, err := r.runIngester.Ingest(req.Context(), name, body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeErrorResponse(req, w, fmt.Errorf("results file exceeds %d bytes", maxBytesErr.Limit), http.StatusRequestEntityTooLarge)
		case errors.Is(err, jtl.ErrMalformedRow), errors.Is(err, ingester.ErrEmptyRun):
			writeErrorResponse(req, w, err, http.StatusBadRequest)
		case db.IsDuplicateRun(err):
			writeErrorResponse(req, w, err, http.StatusConflict)
		case db.IsValidation(err):
			writeErrorResponse(req, w, err, http.StatusBadRequest)
		default:
			slog.Error("unable to ingest run", "name", name, "err", err)
			writeErrorResponse(req, w, err, http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(req, w, http.StatusCreated, run.Summary())
}

func (r *routes) getRun(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	run, err := r.dbProvider.GetRun(req.Context(), id)
	if err != nil {
		if db.IsNoResults(err) {
			writeErrorResponse(req, w, fmt.Errorf("run %s not found", id), http.StatusNotFound)
			return
		}
		slog.Error("unable to get run", "id", id, "err", err)
		writeErrorResponse(req, w, err, http.StatusInternalServerError)
		return
	}
	writeJSONResponse(req, w, http.StatusOK, run)
}

func (r *routes) deleteRun(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.dbProvider.DeleteRun(req.Context(), id); err != nil {
		if db.IsNoResults(err) {
			writeErrorResponse(req, w, fmt.Errorf("run %s not found", id), http.StatusNotFound)
			return
		}
		slog.Error("unable to delete run", "id", id, "err", err)
		writeErrorResponse(req, w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *routes) estimates(w http.ResponseWriter, req *http.Request) {
	mode := r.defaultMode
	if m := req.URL.Query().Get("mode"); m != "" {
		var err error
		if mode, err = estimator.ParseMode(m); err != nil {
			writeErrorResponse(req, w, err, http.StatusBadRequest)
			return
		}
	}

	limit, err := getQueryParamAsInt(req, "limit", r.historyLimit)
	if err != nil {
		writeErrorResponse(req, w, fmt.Errorf("invalid limit: %w", err), http.StatusBadRequest)
		return
	}

	runs, err := r.dbProvider.LatestStatistics(req.Context(), db.ValidateLimit(limit, r.historyLimit))
	if err != nil {
		slog.Error("unable to load run history", "err", err)
		writeErrorResponse(req, w, err, http.StatusInternalServerError)
		return
	}

	result, err := r.estimator.Estimate(runs, mode)
	if err != nil {
		writeErrorResponse(req, w, err, http.StatusBadRequest)
		return
	}
	w.Header().Set("X-Estimate-Runs", strconv.Itoa(len(runs)))
	writeJSONResponse(req, w, http.StatusOK, result)
}

func (r *routes) compare(w http.ResponseWriter, req *http.Request) {
	var body models.CompareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, r.maxUploadBytes)).Decode(&body); err != nil {
		writeErrorResponse(req, w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	if err := body.Current.Validate(); err != nil {
		writeErrorResponse(req, w, fmt.Errorf("invalid current statistics: %w", err), http.StatusBadRequest)
		return
	}

	report, err := compare.Compare(body.Current.Normalized(), body.Baseline, body.Tolerance)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, compare.ErrMissingKey) {
			status = http.StatusBadRequest
		}
		writeErrorResponse(req, w, err, status)
		return
	}

	status := http.StatusOK
	if !report.Passed() {
		status = http.StatusUnprocessableEntity
	}
	writeJSONResponse(req, w, status, models.NewCompareResponse(report))
}
