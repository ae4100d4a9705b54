// Package store defines the persistence boundary shared by the SQL and
// Firestore backends.
package store

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
)

// Tx is the view of the store available inside an invoice generation
// transaction. Reads must happen before writes.
type Tx interface {
	// GetSubscription returns (nil, nil) when the subscription is gone.
	GetSubscription(ctx context.Context, tenantID, id string) (*subscriptiondomain.Subscription, error)
	// GetInvoice returns (nil, nil) when no invoice uses id.
	GetInvoice(ctx context.Context, tenantID, id string) (*invoicedomain.Invoice, error)
	// CreateInvoice returns invoicedomain.ErrAlreadyExists when id is taken.
	CreateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error
	AdvanceSubscription(ctx context.Context, tenantID, id string, next, updatedAt time.Time) error
}

// BillingStore is what the recurring invoice generator needs.
type BillingStore interface {
	FindDueSubscriptions(ctx context.Context, tenantID string, asOf time.Time) ([]subscriptiondomain.Subscription, error)
	ListTenantIDs(ctx context.Context) ([]string, error)
	// RunInTx runs fn atomically. A returned error rolls everything back.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Store interface {
	BillingStore

	tenantdomain.Repository
	clientdomain.Repository
	projectdomain.Repository
	subscriptiondomain.Repository
	invoicedomain.Repository
	auditdomain.Repository

	Ping(ctx context.Context) error
	Close() error
}
