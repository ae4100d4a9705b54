package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the OTel counters for notification, PDF and rate limit
// events. A nil *Metrics records nothing.
type Metrics struct {
	notifications metric.Int64Counter
	pdfRenders    metric.Int64Counter
	rateLimit     metric.Int64Counter
}

// NewProvider installs the global meter provider. Disabled OTel gets a noop
// provider so instruments can still be created.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)
	lc.Append(fx.StopHook(provider.Shutdown))

	log.Info("metrics.otel.enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "portal"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.notifications, "portal_notifications_total", "Notification attempts by kind and outcome."},
		{&m.pdfRenders, "portal_invoice_pdf_renders_total", "Invoice PDF requests by outcome."},
		{&m.rateLimit, "portal_rate_limit_decisions_total", "Trigger endpoint rate limit decisions."},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}
	return &m, nil
}

func (m *Metrics) RecordNotification(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	add(ctx, m.notifications,
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
}

func (m *Metrics) RecordPDFRender(ctx context.Context, tenantID, outcome string) {
	if m == nil {
		return
	}
	add(ctx, m.pdfRenders,
		attribute.String("tenant_id", tenantID),
		attribute.String("outcome", outcome),
	)
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, tenantID, endpoint string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimit,
		attribute.String("tenant_id", tenantID),
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", "allowed"),
	)
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, tenantID, endpoint, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimit,
		attribute.String("tenant_id", tenantID),
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", "denied"),
		attribute.String("reason", reason),
	)
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// allowedLabelKeys keeps emails, invoice ids and client ids out of labels.
var allowedLabelKeys = map[attribute.Key]bool{
	"tenant_id": true,
	"endpoint":  true,
	"kind":      true,
	"outcome":   true,
	"trigger":   true,
	"reason":    true,
}

// FilterAttributes drops labels outside allowedLabelKeys and trims values.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if !allowedLabelKeys[attr.Key] {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			attr = attr.Key.String(strings.TrimSpace(attr.Value.AsString()))
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
