package fsstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InsertInvoice creates the invoice document. A non-empty invoice number
// must be unique within the tenant; the lookup and the create share one
// transaction so concurrent writers of the same number conflict and retry.
func (s *Store) InsertInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	col := s.tenantCol(invoice.TenantID, colInvoices)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if invoice.InvoiceNumber != "" {
			snaps, err := tx.Documents(col.Where("invoiceNumber", "==", invoice.InvoiceNumber).Limit(1)).GetAll()
			if err != nil {
				return err
			}
			if len(snaps) > 0 {
				return invoicedomain.ErrAlreadyExists
			}
		}
		return tx.Create(col.Doc(invoice.ID), toInvoiceDoc(invoice))
	})
	if status.Code(err) == codes.AlreadyExists {
		return invoicedomain.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindInvoice(ctx context.Context, tenantID, id string) (*invoicedomain.Invoice, error) {
	var doc invoiceDoc
	found, err := getDoc(ctx, s.tenantCol(tenantID, colInvoices).Doc(id), &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.model(tenantID, id), nil
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, filter invoicedomain.ListInvoiceFilter, page pagination.Pagination) ([]*invoicedomain.Invoice, error) {
	q := s.tenantCol(tenantID, colInvoices).Query
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	if filter.ClientID != "" {
		q = q.Where("clientId", "==", filter.ClientID)
	}
	q, err := paginate(q, page)
	if err != nil {
		return nil, err
	}
	return collect(ctx, q, func(snap *firestore.DocumentSnapshot) (*invoicedomain.Invoice, error) {
		var doc invoiceDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return doc.model(tenantID, snap.Ref.ID), nil
	})
}

func (s *Store) CountInvoices(ctx context.Context, tenantID string) (int64, error) {
	q := s.tenantCol(tenantID, colInvoices).Query
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", res["all"])
	}
	return v.GetIntegerValue(), nil
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, tenantID, id string, invoiceStatus invoicedomain.InvoiceStatus) (*invoicedomain.Invoice, error) {
	_, err := s.tenantCol(tenantID, colInvoices).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(invoiceStatus)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.FindInvoice(ctx, tenantID, id)
}
