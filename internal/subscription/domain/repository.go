package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type Repository interface {
	InsertSubscription(ctx context.Context, subscription *Subscription) error
	// FindSubscription returns (nil, nil) when the subscription does not exist.
	FindSubscription(ctx context.Context, tenantID, id string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string, filter ListSubscriptionFilter, page pagination.Pagination) ([]*Subscription, error)
	// MutateSubscription loads the row under a write lock, applies fn and
	// persists the result atomically.
	MutateSubscription(ctx context.Context, tenantID, id string, fn func(*Subscription) error) (*Subscription, error)
	// FindDueSubscriptions returns active subscriptions with
	// NextBillingDate <= asOf. Order is unspecified.
	FindDueSubscriptions(ctx context.Context, tenantID string, asOf time.Time) ([]Subscription, error)
}
