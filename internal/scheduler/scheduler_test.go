package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/portal/internal/clock"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"github.com/smallbiznis/portal/internal/recurring"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	calls   int
	trigger string
	result  *recurring.SweepResult
	err     error
}

func (f *fakeSweeper) RunAllTenants(ctx context.Context) (*recurring.SweepResult, error) {
	f.calls++
	f.trigger = recurring.TriggerFrom(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeLeaser struct {
	held     bool
	acquired []string
	released int
}

func (f *fakeLeaser) Acquire(ctx context.Context, name string, ttl time.Duration) (*ratelimit.Lease, error) {
	f.acquired = append(f.acquired, name)
	if f.held {
		return nil, nil
	}
	return &ratelimit.Lease{Key: "portal:lock:" + name, Token: "tok"}, nil
}

func (f *fakeLeaser) Release(ctx context.Context, lease *ratelimit.Lease) error {
	f.released++
	return nil
}

func setupMetrics(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "portal",
		Environment: "test",
	})
	return registry
}

func newTestScheduler(t *testing.T, sweeper Sweeper, leases leaser) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	s := &Scheduler{
		log:     zap.NewNop(),
		cfg:     DefaultConfig(),
		genID:   node,
		clock:   clock.NewFakeClock(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)),
		sweeper: sweeper,
	}
	if leases != nil {
		s.leases = leases
	}
	return s
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := setupMetrics(t)
	s := newTestScheduler(t, &fakeSweeper{}, nil)

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "portal",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "portal_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "portal",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "portal_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceSweepsAllTenantsWithSchedulerTrigger(t *testing.T) {
	registry := setupMetrics(t)
	sweeper := &fakeSweeper{result: &recurring.SweepResult{
		TenantCount: 2,
		Totals:      recurring.SweepTotals{Generated: 3, Errors: 1},
		Results: []recurring.TenantSummary{
			{TenantID: "t1", GeneratedCount: 3},
			{TenantID: "t2", ErrorsCount: 1, Error: "scan due subscriptions: boom"},
		},
	}}
	leases := &fakeLeaser{}
	s := newTestScheduler(t, sweeper, leases)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
	if sweeper.trigger != obsmetrics.TriggerScheduler {
		t.Fatalf("expected scheduler trigger, got %q", sweeper.trigger)
	}
	if len(leases.acquired) != 1 || leases.acquired[0] != "scheduler:invoice_sweep" {
		t.Fatalf("unexpected lease names %v", leases.acquired)
	}
	if leases.released != 1 {
		t.Fatalf("expected lease release, got %d", leases.released)
	}

	labels := map[string]string{"service": "portal", "env": "test", "job": JobInvoiceSweep}
	if got := getCounterValue(t, registry, "portal_scheduler_job_runs_total", labels); got != 1 {
		t.Fatalf("expected run count 1, got %v", got)
	}
}

func TestInvoiceSweepSkipsWhenLeaseHeld(t *testing.T) {
	registry := setupMetrics(t)
	sweeper := &fakeSweeper{result: &recurring.SweepResult{}}
	s := newTestScheduler(t, sweeper, &fakeLeaser{held: true})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sweeper.calls != 0 {
		t.Fatalf("expected no sweep while lease is held, got %d", sweeper.calls)
	}

	labels := map[string]string{
		"service": "portal",
		"env":     "test",
		"job":     JobInvoiceSweep,
		"reason":  obsmetrics.SchedulerSkipReasonLeaseHeld,
	}
	if got := getCounterValue(t, registry, "portal_scheduler_job_skipped_total", labels); got != 1 {
		t.Fatalf("expected skipped count 1, got %v", got)
	}
}

func TestInvoiceSweepWithoutLockBackend(t *testing.T) {
	setupMetrics(t)
	sweeper := &fakeSweeper{result: &recurring.SweepResult{TenantCount: 1}}
	s := newTestScheduler(t, sweeper, nil)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestRunOnceWrapsSweepFailure(t *testing.T) {
	registry := setupMetrics(t)
	listErr := errors.New("list tenants: connection reset")
	s := newTestScheduler(t, &fakeSweeper{err: listErr}, nil)

	err := s.RunOnce(context.Background())
	if !errors.Is(err, listErr) {
		t.Fatalf("expected wrapped sweep error, got %v", err)
	}

	labels := map[string]string{
		"service": "portal",
		"env":     "test",
		"job":     JobInvoiceSweep,
		"reason":  obsmetrics.SchedulerJobReasonUnknown,
	}
	if got := getCounterValue(t, registry, "portal_scheduler_job_errors_total", labels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	setupMetrics(t)
	sweeper := &fakeSweeper{result: &recurring.SweepResult{}}
	s := newTestScheduler(t, sweeper, nil)
	s.cfg.EnabledJobs = []string{"something_else"}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sweeper.calls != 0 {
		t.Fatalf("expected disabled job to be skipped, got %d calls", sweeper.calls)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
