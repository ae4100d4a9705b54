package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/portal/internal/billingcycle"
	"github.com/smallbiznis/portal/internal/config"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/store"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	"gorm.io/datatypes"
)

type outcome int

const (
	outcomeNoop outcome = iota
	outcomeGenerated
	outcomeSkipped
)

func (o outcome) String() string {
	switch o {
	case outcomeGenerated:
		return "generated"
	case outcomeSkipped:
		return "skipped"
	default:
		return "noop"
	}
}

// billSubscription re-reads the subscription inside a transaction and, when
// it is still due, writes the invoice for its current period and advances
// nextBillingDate. The billing key is the invoice id, so a period can be
// written at most once; losing a concurrent race counts as a skip.
func billSubscription(ctx context.Context, st store.BillingStore, cfg config.BillingConfig, tenantID, subscriptionID string, now time.Time) (*invoicedomain.Invoice, outcome, error) {
	var (
		created *invoicedomain.Invoice
		result  outcome
	)

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// fn may be retried by the backend.
		created, result = nil, outcomeNoop

		sub, err := tx.GetSubscription(ctx, tenantID, subscriptionID)
		if err != nil {
			return err
		}
		if sub == nil || sub.Status != subscriptiondomain.SubscriptionStatusActive {
			return nil
		}
		if err := sub.ValidateForBilling(); err != nil {
			return err
		}
		if sub.NextBillingDate.After(now) {
			return nil
		}

		key := billingcycle.BillingKey(sub.ID, sub.NextBillingDate)
		existing, err := tx.GetInvoice(ctx, tenantID, key)
		if err != nil {
			return err
		}
		if existing != nil {
			result = outcomeSkipped
			return nil
		}

		next, err := billingcycle.Advance(sub.NextBillingDate, sub.Interval)
		if err != nil {
			return err
		}

		invoice := invoiceFor(tenantID, sub, key, cfg, now)
		if err := tx.CreateInvoice(ctx, invoice); err != nil {
			return err
		}
		if err := tx.AdvanceSubscription(ctx, tenantID, sub.ID, next, now); err != nil {
			return err
		}

		created, result = invoice, outcomeGenerated
		return nil
	})
	if errors.Is(err, invoicedomain.ErrAlreadyExists) {
		return nil, outcomeSkipped, nil
	}
	if err != nil {
		return nil, outcomeNoop, err
	}
	return created, result, nil
}

func invoiceFor(tenantID string, sub *subscriptiondomain.Subscription, key string, cfg config.BillingConfig, now time.Time) *invoicedomain.Invoice {
	currency := sub.Currency
	if currency == "" {
		currency = cfg.DefaultCurrency
	}
	amount := *sub.Price

	return &invoicedomain.Invoice{
		TenantID:      tenantID,
		ID:            key,
		ClientID:      sub.ClientID,
		ClientName:    sub.ClientName,
		InvoiceNumber: key,
		Title:         sub.Name,
		Amount:        amount,
		Currency:      currency,
		Status:        invoicedomain.InvoiceStatusUnpaid,
		IssueDate:     now,
		DueDate:       now.AddDate(0, 0, cfg.DueWindowDays),
		LineItems: datatypes.NewJSONSlice([]invoicedomain.LineItem{{
			Description: sub.Name,
			Amount:      amount,
			Currency:    currency,
		}}),
		Source:         invoicedomain.SourceSubscription,
		SubscriptionID: sub.ID,
		BillingKey:     key,
		BillingPeriod:  billingcycle.PeriodKey(sub.NextBillingDate),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
