package recurring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/portal/internal/billingcycle"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/notification"
	"github.com/smallbiznis/portal/internal/store"
	"github.com/smallbiznis/portal/internal/store/sqlstore"
	"github.com/smallbiznis/portal/internal/store/sqlstore/sqlstoretest"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []map[string][]notification.BatchItem
}

func (n *fakeNotifier) DispatchAll(ctx context.Context, tenantID string, batches map[string][]notification.BatchItem) notification.EmailSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, batches)

	summary := notification.EmailSummary{Attempted: true, Details: []notification.ClientDetail{}}
	for clientID := range batches {
		summary.SentCount++
		summary.Details = append(summary.Details, notification.ClientDetail{ClientID: clientID, Sent: true})
	}
	return summary
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type harness struct {
	store     *sqlstore.Store
	clock     *clock.FakeClock
	notifier  *fakeNotifier
	generator *Generator
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	st := sqlstoretest.New(t)
	return newHarnessWithStore(t, st, st, now)
}

func newHarnessWithStore(t *testing.T, st *sqlstore.Store, billing store.BillingStore, now time.Time) *harness {
	t.Helper()
	clk := clock.NewFakeClock(now)
	notifier := &fakeNotifier{}
	cfg := config.DefaultBillingConfig()
	cfg.SweepConcurrency = 2

	generator := NewGenerator(Params{
		Log:      zap.NewNop(),
		Clock:    clk,
		Billing:  config.NewStaticBillingConfigHolder(cfg),
		Store:    billing,
		Notifier: notifier,
	})
	return &harness{store: st, clock: clk, notifier: notifier, generator: generator}
}

func (h *harness) seedTenant(t *testing.T, id string) {
	t.Helper()
	now := h.clock.Now()
	require.NoError(t, h.store.InsertTenant(context.Background(), &tenantdomain.Tenant{
		ID: id, Name: id, Slug: id, Status: "active", CreatedAt: now, UpdatedAt: now,
	}))
}

func (h *harness) seedSubscription(t *testing.T, sub *subscriptiondomain.Subscription) {
	t.Helper()
	require.NoError(t, h.store.InsertSubscription(context.Background(), sub))
}

func (h *harness) subscription(t *testing.T, tenantID, id string) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := h.store.FindSubscription(context.Background(), tenantID, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func newSubscription(tenantID, id, clientID string, interval billingcycle.Interval, price int64, next time.Time) *subscriptiondomain.Subscription {
	p := decimal.NewFromInt(price)
	return &subscriptiondomain.Subscription{
		TenantID:        tenantID,
		ID:              id,
		ClientID:        clientID,
		ClientName:      "Client " + clientID,
		Name:            "Plan " + id,
		Price:           &p,
		Currency:        "USD",
		Interval:        interval,
		Status:          subscriptiondomain.SubscriptionStatusActive,
		StartDate:       next.AddDate(0, -1, 0),
		NextBillingDate: next,
		CreatedAt:       next.AddDate(0, -1, 0),
		UpdatedAt:       next.AddDate(0, -1, 0),
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestRunForTenantGeneratesDueInvoices(t *testing.T) {
	now := time.Date(2024, time.January, 20, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	ctx := context.Background()

	h.seedSubscription(t, newSubscription("t1", "s1", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.January, 15)))
	h.seedSubscription(t, newSubscription("t1", "s2", "c1", billingcycle.IntervalYearly, 1200, day(2024, time.January, 1)))
	h.seedSubscription(t, newSubscription("t1", "s3", "c2", billingcycle.IntervalMonthly, 40, day(2024, time.January, 10)))

	paused := newSubscription("t1", "paused", "c1", billingcycle.IntervalMonthly, 10, day(2024, time.January, 1))
	paused.Status = subscriptiondomain.SubscriptionStatusPaused
	h.seedSubscription(t, paused)
	cancelled := newSubscription("t1", "cancelled", "c1", billingcycle.IntervalMonthly, 10, day(2024, time.January, 1))
	cancelled.Status = subscriptiondomain.SubscriptionStatusCancelled
	h.seedSubscription(t, cancelled)
	h.seedSubscription(t, newSubscription("t1", "future", "c1", billingcycle.IntervalMonthly, 10, day(2024, time.February, 1)))

	result, err := h.generator.RunForTenant(ctx, "t1")
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.DueCount)
	assert.Equal(t, 3, result.GeneratedCount)
	assert.Zero(t, result.SkippedCount)
	assert.Zero(t, result.ErrorsCount)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Email.Attempted)
	assert.Equal(t, 2, result.Email.SentCount)
	require.Len(t, result.Invoices, 3)

	invoice, err := h.store.FindInvoice(ctx, "t1", "sub_s1_2024-01")
	require.NoError(t, err)
	require.NotNil(t, invoice)
	assert.Equal(t, "c1", invoice.ClientID)
	assert.Equal(t, "Client c1", invoice.ClientName)
	assert.Equal(t, "Plan s1", invoice.Title)
	assert.Equal(t, "sub_s1_2024-01", invoice.InvoiceNumber)
	assert.Equal(t, "sub_s1_2024-01", invoice.BillingKey)
	assert.Equal(t, "2024-01", invoice.BillingPeriod)
	assert.Equal(t, "s1", invoice.SubscriptionID)
	assert.Equal(t, invoicedomain.SourceSubscription, invoice.Source)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, invoice.Status)
	assert.True(t, invoice.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "USD", invoice.Currency)
	assert.True(t, invoice.IssueDate.Equal(now))
	assert.True(t, invoice.DueDate.Equal(now.AddDate(0, 0, 7)))

	assert.True(t, h.subscription(t, "t1", "s1").NextBillingDate.Equal(day(2024, time.February, 15)))
	assert.True(t, h.subscription(t, "t1", "s2").NextBillingDate.Equal(day(2025, time.January, 1)))
	assert.True(t, h.subscription(t, "t1", "s3").NextBillingDate.Equal(day(2024, time.February, 10)))
	assert.True(t, h.subscription(t, "t1", "paused").NextBillingDate.Equal(day(2024, time.January, 1)))

	require.Equal(t, 1, h.notifier.callCount())
	batches := h.notifier.calls[0]
	require.Len(t, batches["c1"], 2)
	require.Len(t, batches["c2"], 1)
	assert.Equal(t, notification.BatchItem{
		InvoiceID: "sub_s3_2024-01",
		Label:     "SUB-2024-01",
		Amount:    decimal.NewFromInt(40),
		Currency:  "USD",
		DueDate:   "1/27/2024",
	}, batches["c2"][0])

	count, err := h.store.CountInvoices(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRunForTenantIsIdempotent(t *testing.T) {
	h := newHarness(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	h.seedSubscription(t, newSubscription("t1", "s1", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.March, 1)))

	first, err := h.generator.RunForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.GeneratedCount)

	second, err := h.generator.RunForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, second.DueCount)
	assert.Zero(t, second.GeneratedCount)
	assert.Zero(t, second.SkippedCount)
	assert.False(t, second.Email.Attempted)
	assert.Equal(t, 1, h.notifier.callCount())

	count, err := h.store.CountInvoices(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRunForTenantBillsOffsetDatesByInstant(t *testing.T) {
	h := newHarness(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	jakarta := time.FixedZone("WIB", 7*60*60)
	h.seedSubscription(t, newSubscription("t1", "s1", "c1", billingcycle.IntervalMonthly, 100, time.Date(2024, time.March, 1, 5, 0, 0, 0, jakarta)))

	result, err := h.generator.RunForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.DueCount)
	assert.Equal(t, 1, result.GeneratedCount)

	inv, err := h.store.FindInvoice(ctx, "t1", "sub_s1_2024-02")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.True(t, h.subscription(t, "t1", "s1").NextBillingDate.Equal(time.Date(2024, time.March, 29, 22, 0, 0, 0, time.UTC)))
}

func TestRunForTenantSkipsExistingPeriodInvoice(t *testing.T) {
	h := newHarness(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	h.seedSubscription(t, newSubscription("t1", "s1", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.March, 1)))
	require.NoError(t, h.store.InsertInvoice(ctx, &invoicedomain.Invoice{
		TenantID:  "t1",
		ID:        "sub_s1_2024-03",
		ClientID:  "c1",
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		Status:    invoicedomain.InvoiceStatusUnpaid,
		IssueDate: day(2024, time.March, 1),
		DueDate:   day(2024, time.March, 8),
		Source:    invoicedomain.SourceSubscription,
		CreatedAt: day(2024, time.March, 1),
		UpdatedAt: day(2024, time.March, 1),
	}))

	result, err := h.generator.RunForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.DueCount)
	assert.Zero(t, result.GeneratedCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.False(t, result.Email.Attempted)
	assert.Zero(t, h.notifier.callCount())
	assert.True(t, h.subscription(t, "t1", "s1").NextBillingDate.Equal(day(2024, time.March, 1)))
}

func TestRunForTenantConcurrentRunsCreateOneInvoice(t *testing.T) {
	h := newHarness(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	h.seedSubscription(t, newSubscription("t1", "s1", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.March, 1)))

	const runs = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		generated int
	)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.generator.RunForTenant(ctx, "t1")
			if !assert.NoError(t, err) {
				return
			}
			assert.Zero(t, result.ErrorsCount)
			mu.Lock()
			generated += result.GeneratedCount
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, generated)
	count, err := h.store.CountInvoices(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, h.subscription(t, "t1", "s1").NextBillingDate.Equal(day(2024, time.April, 1)))
}

func TestRunForTenantClampsMonthEnd(t *testing.T) {
	h := newHarness(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	h.seedSubscription(t, newSubscription("t1", "leap", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.January, 31)))
	h.seedSubscription(t, newSubscription("t1", "common", "c1", billingcycle.IntervalMonthly, 100, day(2023, time.January, 31)))
	h.seedSubscription(t, newSubscription("t1", "yearly", "c1", billingcycle.IntervalYearly, 100, day(2020, time.February, 29)))

	result, err := h.generator.RunForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.GeneratedCount)

	assert.True(t, h.subscription(t, "t1", "leap").NextBillingDate.Equal(day(2024, time.February, 29)))
	assert.True(t, h.subscription(t, "t1", "common").NextBillingDate.Equal(day(2023, time.February, 28)))
	assert.True(t, h.subscription(t, "t1", "yearly").NextBillingDate.Equal(day(2021, time.February, 28)))

	for _, id := range []string{"sub_leap_2024-01", "sub_common_2023-01", "sub_yearly_2020-02"} {
		invoice, err := h.store.FindInvoice(ctx, "t1", id)
		require.NoError(t, err)
		assert.NotNil(t, invoice, id)
	}
}

func TestRunForTenantRecordsInvalidSubscriptions(t *testing.T) {
	h := newHarness(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	noPrice := newSubscription("t1", "no-price", "c1", billingcycle.IntervalMonthly, 0, day(2024, time.March, 1))
	noPrice.Price = nil
	h.seedSubscription(t, noPrice)
	weekly := newSubscription("t1", "weekly", "c1", billingcycle.Interval("weekly"), 10, day(2024, time.March, 1))
	h.seedSubscription(t, weekly)
	h.seedSubscription(t, newSubscription("t1", "ok", "c1", billingcycle.IntervalMonthly, 10, day(2024, time.March, 1)))

	result, err := h.generator.RunForTenant(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, 3, result.DueCount)
	assert.Equal(t, 1, result.GeneratedCount)
	assert.Equal(t, 2, result.ErrorsCount)
	assert.ElementsMatch(t, []SubscriptionError{
		{
			SubscriptionID: "no-price",
			Message:        "Subscription missing required fields (clientId/name/price/interval)",
			Code:           subscriptiondomain.CodeInvalidSubscription,
		},
		{
			SubscriptionID: "weekly",
			Message:        "Invalid interval: weekly",
			Code:           subscriptiondomain.CodeInvalidInterval,
		},
	}, result.Errors)

	assert.True(t, h.subscription(t, "t1", "no-price").NextBillingDate.Equal(day(2024, time.March, 1)))
	assert.True(t, h.subscription(t, "t1", "weekly").NextBillingDate.Equal(day(2024, time.March, 1)))
	count, err := h.store.CountInvoices(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRunForTenantRejectsBlankTenant(t *testing.T) {
	h := newHarness(t, time.Now())
	_, err := h.generator.RunForTenant(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

// racingStore reports every invoice write as already taken, as if another
// run committed the same period first.
type racingStore struct {
	store.BillingStore
}

func (s racingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.BillingStore.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, racingTx{Tx: tx})
	})
}

type racingTx struct {
	store.Tx
}

func (racingTx) CreateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return invoicedomain.ErrAlreadyExists
}

func TestRunForTenantCountsLostRaceAsSkip(t *testing.T) {
	st := sqlstoretest.New(t)
	h := newHarnessWithStore(t, st, racingStore{BillingStore: st}, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	h.seedSubscription(t, newSubscription("t1", "s1", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.March, 1)))

	result, err := h.generator.RunForTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Zero(t, result.GeneratedCount)
	assert.Zero(t, result.ErrorsCount)
	assert.True(t, h.subscription(t, "t1", "s1").NextBillingDate.Equal(day(2024, time.March, 1)))
}

// flakyStore fails the due scan for the listed tenants.
type flakyStore struct {
	store.BillingStore
	broken map[string]bool
}

var errScan = errors.New("deadline exceeded")

func (s flakyStore) FindDueSubscriptions(ctx context.Context, tenantID string, asOf time.Time) ([]subscriptiondomain.Subscription, error) {
	if s.broken[tenantID] {
		return nil, errScan
	}
	return s.BillingStore.FindDueSubscriptions(ctx, tenantID, asOf)
}

func TestRunAllTenantsIsolatesFailures(t *testing.T) {
	st := sqlstoretest.New(t)
	h := newHarnessWithStore(t, st, flakyStore{BillingStore: st, broken: map[string]bool{"t2": true}}, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	for _, id := range []string{"t1", "t2", "t3"} {
		h.seedTenant(t, id)
	}
	h.seedSubscription(t, newSubscription("t1", "a", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.March, 1)))
	h.seedSubscription(t, newSubscription("t3", "b", "c9", billingcycle.IntervalMonthly, 50, day(2024, time.March, 2)))
	h.seedSubscription(t, newSubscription("t3", "c", "c9", billingcycle.IntervalMonthly, 50, day(2024, time.April, 2)))

	sweep, err := h.generator.RunAllTenants(context.Background())
	require.NoError(t, err)

	assert.True(t, sweep.RanAt.Equal(h.clock.Now()))
	assert.Equal(t, 3, sweep.TenantCount)
	assert.Equal(t, SweepTotals{Generated: 2, Skipped: 0, Errors: 1}, sweep.Totals)
	require.Len(t, sweep.Results, 3)

	assert.Equal(t, "t1", sweep.Results[0].TenantID)
	assert.Equal(t, 1, sweep.Results[0].GeneratedCount)
	assert.True(t, sweep.Results[0].Email.Attempted)

	assert.Equal(t, TenantSummary{
		TenantID:    "t2",
		ErrorsCount: 1,
		Error:       "scan due subscriptions: deadline exceeded",
	}, sweep.Results[1])

	assert.Equal(t, "t3", sweep.Results[2].TenantID)
	assert.Equal(t, 1, sweep.Results[2].DueCount)
	assert.Equal(t, 1, sweep.Results[2].GeneratedCount)
}

func TestRunTenantSweep(t *testing.T) {
	st := sqlstoretest.New(t)
	h := newHarnessWithStore(t, st, flakyStore{BillingStore: st, broken: map[string]bool{"broken": true}}, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC))
	h.seedSubscription(t, newSubscription("t1", "a", "c1", billingcycle.IntervalMonthly, 100, day(2024, time.March, 1)))

	sweep, err := h.generator.RunTenantSweep(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.TenantCount)
	assert.Equal(t, SweepTotals{Generated: 1}, sweep.Totals)
	require.Len(t, sweep.Results, 1)
	assert.Equal(t, "t1", sweep.Results[0].TenantID)

	failed, err := h.generator.RunTenantSweep(context.Background(), "broken")
	assert.ErrorIs(t, err, errScan)
	require.NotNil(t, failed)
	assert.True(t, failed.RanAt.Equal(h.clock.Now()))
}
