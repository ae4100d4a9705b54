package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/portal/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFallsBackToAppConfig(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("METRICS_PUSH_EXPORTER", "")

	cfg := LoadConfig(config.Config{AppName: "portal-scheduler", Environment: "staging", AppVersion: "1.2.3", OTLPEndpoint: "otel:4317"})

	assert.Equal(t, "portal-scheduler", cfg.ServiceName)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "otel:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, time.Minute, cfg.MetricsPushInterval)
	assert.Empty(t, cfg.MetricsPushExporter)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("METRICS_PUSH_EXPORTER", "Prometheus_Pushgateway")
	t.Setenv("METRICS_PUSH_INTERVAL", "30s")

	cfg := LoadConfig(config.Config{})

	assert.Equal(t, "portal", cfg.ServiceName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, "prometheus_pushgateway", cfg.MetricsPushExporter)
	assert.Equal(t, 30*time.Second, cfg.MetricsPushInterval)
	assert.True(t, cfg.Debug())
}
