// Package sqlstore implements store.Store on gorm.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	"github.com/smallbiznis/portal/internal/store"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/db"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"github.com/smallbiznis/portal/pkg/rls"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(conn *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: conn, log: log.Named("store.sql")}
}

// Models lists every table owned by the store, in dependency order.
func Models() []any {
	return []any{
		&tenantdomain.Tenant{},
		&tenantdomain.User{},
		&tenantdomain.Membership{},
		&tenantdomain.Settings{},
		&clientdomain.Client{},
		&projectdomain.Project{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&auditdomain.AuditLog{},
	}
}

// invoiceNumberIndex mirrors migration 000004. MySQL has no partial
// indexes, so it keeps count-based numbers without the unique guard.
const invoiceNumberIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_tenant_number ON invoices (tenant_id, invoice_number) WHERE invoice_number <> ''`

// AutoMigrate creates missing tables. Production schemas come from
// internal/migration; this is used by sqlite deployments and tests.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(Models()...); err != nil {
		return err
	}
	if s.db.Dialector.Name() == "mysql" {
		return nil
	}
	return s.db.Exec(invoiceNumberIndex).Error
}

func (s *Store) SQLDB() (*sql.DB, error) {
	return s.db.DB()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &billingTx{db: tx})
	})
}

type billingTx struct {
	db *gorm.DB
}

func (t *billingTx) GetSubscription(ctx context.Context, tenantID, id string) (*subscriptiondomain.Subscription, error) {
	if err := rls.WithTenant(t.db, tenantID); err != nil {
		return nil, err
	}
	var sub subscriptiondomain.Subscription
	err := forUpdate(t.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (t *billingTx) GetInvoice(ctx context.Context, tenantID, id string) (*invoicedomain.Invoice, error) {
	return findInvoice(ctx, t.db, tenantID, id)
}

func (t *billingTx) CreateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return insertInvoice(ctx, t.db, invoice)
}

func (t *billingTx) AdvanceSubscription(ctx context.Context, tenantID, id string, next, updatedAt time.Time) error {
	res := t.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"next_billing_date": next.UTC(),
			"updated_at":        updatedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrSubscriptionNotFound
	}
	return nil
}

// forUpdate adds a row lock where the dialect has one. SQLite serializes
// writers at the database level instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// paginate applies the created_at desc, id desc keyset cursor and fetches
// one extra row so pagination.BuildPage can detect more pages.
func paginate(stmt *gorm.DB, page pagination.Pagination) (*gorm.DB, error) {
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := cursor.Time()
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
	}
	return stmt.Order("created_at desc, id desc").Limit(page.Limit() + 1), nil
}

func isDuplicate(err error) bool {
	return db.IsDuplicateKeyErr(err)
}
