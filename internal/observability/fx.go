package observability

import (
	"github.com/smallbiznis/portal/internal/observability/logger"
	"github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/observability/metricspush"
	"github.com/smallbiznis/portal/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		provideBillingMetrics,
		provideMetricsPushConfig,
	),
	fx.Invoke(ensureTracingProvider),
	fx.Invoke(ensureSchedulerMetrics),
	fx.Invoke(ensureBillingMetrics),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Debug:       cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func provideMetricsPushConfig(cfg Config) metricspush.Config {
	return metricspush.Config{
		Exporter:  cfg.MetricsPushExporter,
		Endpoint:  cfg.MetricsPushEndpoint,
		AuthToken: cfg.MetricsPushToken,
		Job:       cfg.ServiceName,
		Interval:  cfg.MetricsPushInterval,
		Grouping:  map[string]string{"environment": cfg.Environment},
	}
}

func ensureSchedulerMetrics(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
}

func provideBillingMetrics(cfg metrics.Config) *metrics.BillingMetrics {
	return metrics.BillingWithConfig(cfg)
}

func ensureBillingMetrics(_ *metrics.BillingMetrics) {}
