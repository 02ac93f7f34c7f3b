// Package tracing installs the global OpenTelemetry tracer provider from the
// tracing section of the configuration.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/thanos-io/thanos/pkg/tracing/otlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"
)

// slogKitLogger adapts slog to the go-kit logger the thanos exporter expects.
type slogKitLogger struct {
	logger *slog.Logger
}

func (l slogKitLogger) Log(keyvals ...interface{}) error {
	l.logger.Log(context.Background(), slog.LevelInfo, "tracing.exporter", keyvals...)
	return nil
}

// Setup builds the OTLP tracer provider and registers it globally. It returns
// nil when tracing is not configured.
func Setup(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*trace.TracerProvider, error) {
	if !cfg.IsTracingEnabled() {
		return nil, nil
	}

	tracingCfg := *cfg.Tracing
	if name := cfg.GetTracingServiceName(); name != "" {
		tracingCfg.ServiceName = name
	}
	b, err := yaml.Marshal(tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal tracing config: %w", err)
	}

	tp, err := otlp.NewTracerProvider(ctx, slogKitLogger{logger: logger}, b)
	if err != nil {
		return nil, fmt.Errorf("unable to create tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	return tp, nil
}
