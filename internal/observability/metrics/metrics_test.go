package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tenant_id", " t1 "),
		attribute.String("client_email", "ada@example.com"),
		attribute.String("outcome", "sent"),
	)

	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.String("tenant_id", "t1"), attrs[0])
	assert.Equal(t, attribute.String("outcome", "sent"), attrs[1])
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordNotification(t.Context(), "client_invoices", "sent")
	m.RecordPDFRender(t.Context(), "t1", "rendered")
	m.RecordRateLimitDenied(t.Context(), "t1", "admin", "token_bucket")
}

func TestRateLimitDecisionsShareOneCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := New(Config{ServiceName: "portal-test"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRateLimitAllowed(ctx, "t1", "admin")
	m.RecordRateLimitAllowed(ctx, "t1", "admin")
	m.RecordRateLimitDenied(ctx, "t1", "admin", "token_bucket")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "portal_rate_limit_decisions_total" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range sum.DataPoints {
				outcome, _ := point.Attributes.Value("outcome")
				totals[outcome.AsString()] += point.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"allowed": 2, "denied": 1}, totals)
}
