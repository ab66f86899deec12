package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/allotment/internal/observability/logger"
	"github.com/smallbiznis/allotment/internal/observability/metrics"
	"github.com/smallbiznis/allotment/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		metrics.NewHTTPMetrics,
		metrics.NewJobMetrics,
	),
	// The tracer provider installs itself globally; nothing else depends on it.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

func splitConfig(cfg Config) componentConfigs {
	debug := cfg.Debug()
	return componentConfigs{
		Logger: logger.Config{
			ServiceName:         cfg.ServiceName,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               cfg.LogLevel,
			Format:              cfg.LogFormat,
			Debug:               debug,
			IncludeCaller:       true,
			IncludeStackOnError: debug,
		},
		Tracing: tracing.Config{
			Enabled:          cfg.OtelEnabled,
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			SamplingRatio:    cfg.OtelSamplingRatio,
		},
		Metrics: metrics.Config{
			Enabled:          cfg.OtelEnabled,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		},
	}
}
