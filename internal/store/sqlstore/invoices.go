package sqlstore

import (
	"context"
	"errors"

	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"gorm.io/gorm"
)

func (s *Store) InsertInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return insertInvoice(ctx, s.db, invoice)
}

func (s *Store) FindInvoice(ctx context.Context, tenantID, id string) (*invoicedomain.Invoice, error) {
	return findInvoice(ctx, s.db, tenantID, id)
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, filter invoicedomain.ListInvoiceFilter, page pagination.Pagination) ([]*invoicedomain.Invoice, error) {
	stmt := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ClientID != "" {
		stmt = stmt.Where("client_id = ?", filter.ClientID)
	}
	stmt, err := paginate(stmt, page)
	if err != nil {
		return nil, err
	}

	var invoices []*invoicedomain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) CountInvoices(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, tenantID, id string, status invoicedomain.InvoiceStatus) (*invoicedomain.Invoice, error) {
	res := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": s.db.NowFunc(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return findInvoice(ctx, s.db, tenantID, id)
}

func insertInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	err := tx.WithContext(ctx).Create(invoice).Error
	if isDuplicate(err) {
		return invoicedomain.ErrAlreadyExists
	}
	return err
}

func findInvoice(ctx context.Context, tx *gorm.DB, tenantID, id string) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
