// Package observability wires tracing and metrics into the fx graph.
package observability

import (
	appconfig "github.com/halfnote/halfnote/internal/config"
	"github.com/halfnote/halfnote/internal/observability/metrics"
	"github.com/halfnote/halfnote/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

func newTracingConfig(cfg appconfig.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OTLPEndpoint != "",
		ServiceName:      "halfnote",
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ExporterProtocol: "http",
		SamplingRatio:    0.1,
	}
}

func newMetricsConfig(cfg appconfig.Config) metrics.Config {
	return metrics.Config{
		ServiceName: "halfnote",
		Environment: cfg.Environment,
	}
}

func newHTTPMetrics(cfg metrics.Config) (*metrics.HTTPMetrics, error) {
	return metrics.NewHTTPMetrics(cfg, otel.GetMeterProvider())
}

var Module = fx.Module("observability",
	fx.Provide(newTracingConfig),
	fx.Provide(newMetricsConfig),
	fx.Provide(tracing.NewProvider),
	fx.Provide(newHTTPMetrics),
	fx.Provide(metrics.PipelineWithConfig),
	fx.Invoke(func(provider *sdktrace.TracerProvider) {}),
)
