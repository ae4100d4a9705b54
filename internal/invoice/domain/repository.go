package domain

import (
	"context"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type Repository interface {
	// InsertInvoice returns ErrAlreadyExists when the id is taken.
	InsertInvoice(ctx context.Context, invoice *Invoice) error
	// FindInvoice returns (nil, nil) when the invoice does not exist.
	FindInvoice(ctx context.Context, tenantID, id string) (*Invoice, error)
	ListInvoices(ctx context.Context, tenantID string, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	CountInvoices(ctx context.Context, tenantID string) (int64, error)
	UpdateInvoiceStatus(ctx context.Context, tenantID, id string, status InvoiceStatus) (*Invoice, error)
}
