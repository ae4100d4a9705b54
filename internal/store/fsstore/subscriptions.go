package fsstore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
)

func (s *Store) InsertSubscription(ctx context.Context, subscription *subscriptiondomain.Subscription) error {
	_, err := s.tenantCol(subscription.TenantID, colSubscriptions).
		Doc(subscription.ID).
		Create(ctx, toSubscriptionDoc(subscription))
	return err
}

func (s *Store) FindSubscription(ctx context.Context, tenantID, id string) (*subscriptiondomain.Subscription, error) {
	var doc subscriptionDoc
	found, err := getDoc(ctx, s.tenantCol(tenantID, colSubscriptions).Doc(id), &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.model(tenantID, id), nil
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, filter subscriptiondomain.ListSubscriptionFilter, page pagination.Pagination) ([]*subscriptiondomain.Subscription, error) {
	q := s.tenantCol(tenantID, colSubscriptions).Query
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
	return collect(ctx, q, decodeSubscription(tenantID))
}

func (s *Store) MutateSubscription(ctx context.Context, tenantID, id string, fn func(*subscriptiondomain.Subscription) error) (*subscriptiondomain.Subscription, error) {
	ref := s.tenantCol(tenantID, colSubscriptions).Doc(id)

	var out *subscriptiondomain.Subscription
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if err != nil {
			return err
		}
		var doc subscriptionDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		sub := doc.model(tenantID, id)
		if err := fn(sub); err != nil {
			return err
		}
		out = sub
		return tx.Set(ref, toSubscriptionDoc(sub))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindDueSubscriptions(ctx context.Context, tenantID string, asOf time.Time) ([]subscriptiondomain.Subscription, error) {
	q := s.tenantCol(tenantID, colSubscriptions).
		Where("status", "==", string(subscriptiondomain.SubscriptionStatusActive)).
		Where("nextBillingDate", "<=", asOf)

	items, err := collect(ctx, q, decodeSubscription(tenantID))
	if err != nil {
		return nil, err
	}
	out := make([]subscriptiondomain.Subscription, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func decodeSubscription(tenantID string) func(*firestore.DocumentSnapshot) (*subscriptiondomain.Subscription, error) {
	return func(snap *firestore.DocumentSnapshot) (*subscriptiondomain.Subscription, error) {
		var doc subscriptionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return doc.model(tenantID, snap.Ref.ID), nil
	}
}
