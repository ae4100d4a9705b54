// Package recurring generates invoices for due subscriptions, one tenant at a
// time, and notifies the billed clients.
package recurring

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/portal/internal/billingcycle"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/notification"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/observability/tracing"
	"github.com/smallbiznis/portal/internal/store"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dueDateLayout = "1/2/2006"

var ErrInvalidTenant = errors.New("invalid_tenant")

type triggerKey struct{}

// WithTrigger tags runs started from ctx for metrics. The default is admin.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger recorded by WithTrigger.
func TriggerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(triggerKey{}).(string); ok && v != "" {
		return v
	}
	return obsmetrics.TriggerAdmin
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Store    store.BillingStore
	Notifier notification.Notifier
	Metrics  *obsmetrics.BillingMetrics `optional:"true"`
}

type Generator struct {
	log      *zap.Logger
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	store    store.BillingStore
	notifier notification.Notifier
	metrics  *obsmetrics.BillingMetrics
}

func NewGenerator(p Params) *Generator {
	return &Generator{
		log:      p.Log.Named("recurring.generator"),
		clock:    p.Clock,
		billing:  p.Billing,
		store:    p.Store,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// RunForTenant invoices every due subscription of the tenant and emails
// each affected client once. Only a failed scan fails the run; anything
// else is reported per subscription or per client.
func (g *Generator) RunForTenant(ctx context.Context, tenantID string) (*RunResult, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrInvalidTenant
	}

	trigger := TriggerFrom(ctx)
	runID := ulid.MustNew(ulid.Now(), rand.Reader).String()
	log := g.log.With(
		zap.String("run_id", runID),
		zap.String("tenant_id", tenantID),
		zap.String("trigger", trigger),
	)

	ctx, span := tracing.Tracer("recurring").Start(ctx, "billing.run_for_tenant")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("billing.run_id", runID),
		attribute.String("billing.trigger", trigger),
	)...)

	started := time.Now()
	now := g.clock.Now()
	cfg := g.billing.Get()
	log.Info("billing.run.start", zap.Time("as_of", now))

	due, err := g.store.FindDueSubscriptions(ctx, tenantID, now)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "scan failed")
		g.metrics.IncTenantFailure(trigger)
		log.Error("billing.run.scan_failed", zap.Error(err))
		return nil, fmt.Errorf("scan due subscriptions: %w", err)
	}

	result := &RunResult{
		RunID:    runID,
		DueCount: len(due),
		Errors:   []SubscriptionError{},
	}
	batches := make(map[string][]notification.BatchItem)

	for _, sub := range due {
		invoice, out, err := g.bill(ctx, tenantID, sub, cfg, now)
		if err != nil {
			subErr := SubscriptionError{SubscriptionID: sub.ID, Message: err.Error()}
			var billingErr *subscriptiondomain.BillingError
			if errors.As(err, &billingErr) {
				subErr.Code = billingErr.Code
			}
			result.ErrorsCount++
			result.Errors = append(result.Errors, subErr)
			g.metrics.IncSubscriptionError(subErr.Code)
			log.Warn("billing.subscription.failed",
				zap.String("subscription_id", sub.ID),
				zap.String("code", subErr.Code),
				zap.Error(err),
			)
			continue
		}

		switch out {
		case outcomeGenerated:
			result.GeneratedCount++
			result.Invoices = append(result.Invoices, invoice)
			batches[invoice.ClientID] = append(batches[invoice.ClientID], notification.BatchItem{
				InvoiceID: invoice.ID,
				Label:     billingcycle.InvoiceLabel(invoice.BillingKey),
				Amount:    invoice.Amount,
				Currency:  invoice.Currency,
				DueDate:   invoice.DueDate.Format(dueDateLayout),
			})
			log.Info("invoice.generated",
				zap.String("subscription_id", sub.ID),
				zap.String("invoice_id", invoice.ID),
				zap.String("billing_period", invoice.BillingPeriod),
			)
		case outcomeSkipped:
			result.SkippedCount++
			log.Info("invoice.skipped", zap.String("subscription_id", sub.ID))
		}
	}

	if result.GeneratedCount > 0 {
		result.Email = g.notifier.DispatchAll(ctx, tenantID, batches)
	} else {
		result.Email = notification.EmailSummary{Details: []notification.ClientDetail{}}
	}

	g.metrics.AddInvoices(obsmetrics.InvoiceOutcomeGenerated, result.GeneratedCount)
	g.metrics.AddInvoices(obsmetrics.InvoiceOutcomeSkipped, result.SkippedCount)
	g.metrics.AddInvoices(obsmetrics.InvoiceOutcomeFailed, result.ErrorsCount)
	g.metrics.ObserveRun(trigger, time.Since(started))

	span.SetAttributes(
		attribute.Int("billing.due", result.DueCount),
		attribute.Int("billing.generated", result.GeneratedCount),
		attribute.Int("billing.skipped", result.SkippedCount),
		attribute.Int("billing.errors", result.ErrorsCount),
	)
	log.Info("billing.run.finish",
		zap.Int("due", result.DueCount),
		zap.Int("generated", result.GeneratedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("errors", result.ErrorsCount),
		zap.Int("emails_sent", result.Email.SentCount),
		zap.Int("emails_failed", result.Email.FailedCount),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

func (g *Generator) bill(ctx context.Context, tenantID string, sub subscriptiondomain.Subscription, cfg config.BillingConfig, now time.Time) (*invoicedomain.Invoice, outcome, error) {
	ctx, span := tracing.Tracer("recurring").Start(ctx, "billing.subscription")
	defer span.End()
	span.SetAttributes(attribute.String("subscription.id", sub.ID))

	invoice, out, err := billSubscription(ctx, g.store, cfg, tenantID, sub.ID, now)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "billing failed")
		return nil, outcomeNoop, err
	}
	span.SetAttributes(attribute.String("billing.outcome", out.String()))
	return invoice, out, nil
}

// RunAllTenants sweeps every tenant. A failing tenant is reported in its
// own entry and never stops the others.
func (g *Generator) RunAllTenants(ctx context.Context) (*SweepResult, error) {
	sweep := &SweepResult{RanAt: g.clock.Now(), Results: []TenantSummary{}}

	tenantIDs, err := g.store.ListTenantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	sweep.TenantCount = len(tenantIDs)

	cfg := g.billing.Get()
	summaries := make([]TenantSummary, len(tenantIDs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(cfg.SweepConcurrency, 1))
	for i, tenantID := range tenantIDs {
		group.Go(func() error {
			summaries[i] = g.sweepTenant(groupCtx, tenantID, cfg.TenantRunTimeout)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("sweep tenants: %w", err)
	}

	for _, summary := range summaries {
		sweep.add(summary)
	}

	g.log.Info("billing.sweep.finish",
		zap.Int("tenants", sweep.TenantCount),
		zap.Int("generated", sweep.Totals.Generated),
		zap.Int("skipped", sweep.Totals.Skipped),
		zap.Int("errors", sweep.Totals.Errors),
	)
	return sweep, nil
}

func (g *Generator) sweepTenant(ctx context.Context, tenantID string, timeout time.Duration) TenantSummary {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := g.RunForTenant(ctx, tenantID)
	if err != nil {
		g.log.Error("billing.sweep.tenant_failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return TenantSummary{TenantID: tenantID, ErrorsCount: 1, Error: err.Error()}
	}
	return summarize(tenantID, result)
}

// RunTenantSweep runs one tenant and wraps the report in the sweep shape.
// Unlike RunAllTenants, a tenant failure is returned as the error.
func (g *Generator) RunTenantSweep(ctx context.Context, tenantID string) (*SweepResult, error) {
	sweep := &SweepResult{RanAt: g.clock.Now(), TenantCount: 1, Results: []TenantSummary{}}

	result, err := g.RunForTenant(ctx, tenantID)
	if err != nil {
		return sweep, err
	}
	sweep.add(summarize(tenantID, result))
	return sweep, nil
}
