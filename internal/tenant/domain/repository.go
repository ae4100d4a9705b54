package domain

import (
	"context"
	"time"
)

// Repository finders return (nil, nil) when the record does not exist.
type Repository interface {
	InsertTenant(ctx context.Context, tenant *Tenant) error
	FindTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenantIDs(ctx context.Context) ([]string, error)

	UpsertUser(ctx context.Context, user *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByTenantRole(ctx context.Context, tenantID string, role Role) (*User, error)

	UpsertMembership(ctx context.Context, membership *Membership) error
	FindMembership(ctx context.Context, id string) (*Membership, error)
	FirstMembershipForUser(ctx context.Context, userID string) (*Membership, error)
	FirstMembershipByRole(ctx context.Context, tenantID string, role Role) (*Membership, error)

	FindSettings(ctx context.Context, tenantID string) (*Settings, error)
	MarkEmailTestSent(ctx context.Context, tenantID string, at time.Time) error
}
