package sqlstore

import (
	"context"
	"time"

	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"github.com/smallbiznis/portal/pkg/rls"
	"gorm.io/gorm"
)

// SQLite keeps timestamps as text, so billing dates are stored in UTC to keep
// the due scan's comparison chronological.
func toUTC(sub *subscriptiondomain.Subscription) {
	sub.StartDate = sub.StartDate.UTC()
	sub.NextBillingDate = sub.NextBillingDate.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
}

func (s *Store) InsertSubscription(ctx context.Context, subscription *subscriptiondomain.Subscription) error {
	toUTC(subscription)
	return s.db.WithContext(ctx).Create(subscription).Error
}

func (s *Store) FindSubscription(ctx context.Context, tenantID, id string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	return first(s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id), &sub)
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, filter subscriptiondomain.ListSubscriptionFilter, page pagination.Pagination) ([]*subscriptiondomain.Subscription, error) {
	stmt := s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
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

	var subs []*subscriptiondomain.Subscription
	if err := stmt.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) MutateSubscription(ctx context.Context, tenantID, id string, fn func(*subscriptiondomain.Subscription) error) (*subscriptiondomain.Subscription, error) {
	var out *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tenantID); err != nil {
			return err
		}

		var sub subscriptiondomain.Subscription
		found, err := first(forUpdate(tx).Where("tenant_id = ? AND id = ?", tenantID, id), &sub)
		if err != nil {
			return err
		}
		if found == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if err := fn(found); err != nil {
			return err
		}
		toUTC(found)
		if err := tx.Save(found).Error; err != nil {
			return err
		}
		out = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindDueSubscriptions(ctx context.Context, tenantID string, asOf time.Time) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND next_billing_date <= ?",
			tenantID,
			subscriptiondomain.SubscriptionStatusActive,
			asOf.UTC(),
		).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
