package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TriggerAdmin     = "admin"
	TriggerCron      = "cron"
	TriggerScheduler = "scheduler"

	InvoiceOutcomeGenerated = "generated"
	InvoiceOutcomeSkipped   = "skipped"
	InvoiceOutcomeFailed    = "failed"
)

// BillingMetrics tracks recurring invoice generation runs.
type BillingMetrics struct {
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	invoices           *prometheus.CounterVec
	subscriptionErrors *prometheus.CounterVec
	tenantFailures     *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portal_billing_runs_total",
		Help:        "Tenant invoice generation runs by trigger.",
		ConstLabels: labels,
	}, []string{"trigger"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "portal_billing_run_duration_seconds",
		Help:        "Tenant invoice generation run latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: labels,
	}, []string{"trigger"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portal_billing_invoices_total",
		Help:        "Subscription invoice outcomes.",
		ConstLabels: labels,
	}, []string{"outcome"})
	subscriptionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portal_billing_subscription_errors_total",
		Help:        "Per-subscription generation errors by code.",
		ConstLabels: labels,
	}, []string{"code"})
	tenantFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portal_billing_tenant_failures_total",
		Help:        "Tenant runs that failed before producing a result.",
		ConstLabels: labels,
	}, []string{"trigger"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portal_billing_notifications_total",
		Help:        "Client invoice notifications by outcome.",
		ConstLabels: labels,
	}, []string{"outcome"})

	registerer.MustRegister(runs, runDuration, invoices, subscriptionErrors, tenantFailures, notifications)

	return &BillingMetrics{
		runs:               runs,
		runDuration:        runDuration,
		invoices:           invoices,
		subscriptionErrors: subscriptionErrors,
		tenantFailures:     tenantFailures,
		notifications:      notifications,
	}
}

func (m *BillingMetrics) ObserveRun(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger).Inc()
	m.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func (m *BillingMetrics) AddInvoices(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoices.WithLabelValues(outcome).Add(float64(count))
}

func (m *BillingMetrics) IncSubscriptionError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.subscriptionErrors.WithLabelValues(code).Inc()
}

func (m *BillingMetrics) IncTenantFailure(trigger string) {
	if m == nil {
		return
	}
	m.tenantFailures.WithLabelValues(trigger).Inc()
}

func (m *BillingMetrics) IncNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
