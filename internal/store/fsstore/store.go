// Package fsstore implements store.Store on Cloud Firestore using the
// tenants/{tenantId}/... document layout.
package fsstore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/store"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	colTenants       = "tenants"
	colUsers         = "users"
	colUserTenants   = "userTenants"
	colClients       = "clients"
	colProjects      = "projects"
	colSubscriptions = "subscriptions"
	colInvoices      = "invoices"
	colSettings      = "settings"
	colAuditLogs     = "auditLogs"

	docEmailTest = "emailTest"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client *firestore.Client
	log    *zap.Logger
}

func New(client *firestore.Client, log *zap.Logger) *Store {
	return &Store{client: client, log: log.Named("store.firestore")}
}

func (s *Store) tenantCol(tenantID, name string) *firestore.CollectionRef {
	return s.client.Collection(colTenants).Doc(tenantID).Collection(name)
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(colTenants).Limit(1).Documents(ctx).GetAll()
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &billingTx{store: s, tx: tx})
	})
	// tx.Create reports a taken id only when the commit fails.
	if status.Code(err) == codes.AlreadyExists {
		return invoicedomain.ErrAlreadyExists
	}
	return err
}

type billingTx struct {
	store *Store
	tx    *firestore.Transaction
}

func (t *billingTx) GetSubscription(ctx context.Context, tenantID, id string) (*subscriptiondomain.Subscription, error) {
	snap, err := t.tx.Get(t.store.tenantCol(tenantID, colSubscriptions).Doc(id))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc subscriptionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.model(tenantID, id), nil
}

func (t *billingTx) GetInvoice(ctx context.Context, tenantID, id string) (*invoicedomain.Invoice, error) {
	snap, err := t.tx.Get(t.store.tenantCol(tenantID, colInvoices).Doc(id))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc invoiceDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.model(tenantID, id), nil
}

func (t *billingTx) CreateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return t.tx.Create(t.store.tenantCol(invoice.TenantID, colInvoices).Doc(invoice.ID), toInvoiceDoc(invoice))
}

func (t *billingTx) AdvanceSubscription(ctx context.Context, tenantID, id string, next, updatedAt time.Time) error {
	return t.tx.Update(t.store.tenantCol(tenantID, colSubscriptions).Doc(id), []firestore.Update{
		{Path: "nextBillingDate", Value: next},
		{Path: "updatedAt", Value: updatedAt},
	})
}

func isNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}

// getDoc reads one document into dst; found is false when it does not exist.
func getDoc(ctx context.Context, ref *firestore.DocumentRef, dst any) (found bool, err error) {
	snap, err := ref.Get(ctx)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := snap.DataTo(dst); err != nil {
		return false, err
	}
	return true, nil
}

// firstDoc returns the first snapshot of q, or nil when q is empty.
func firstDoc(ctx context.Context, q firestore.Query) (*firestore.DocumentSnapshot, error) {
	iter := q.Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// paginate orders by createdAt desc then document id desc and fetches one
// extra document so pagination.BuildPage can detect more pages.
func paginate(q firestore.Query, page pagination.Pagination) (firestore.Query, error) {
	q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return q, err
		}
		createdAt, err := cursor.Time()
		if err != nil {
			return q, err
		}
		q = q.StartAfter(createdAt, cursor.ID)
	}
	return q.Limit(page.Limit() + 1), nil
}

// collect decodes every document of q with decode.
func collect[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (*T, error)) ([]*T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		item, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
}
