package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	Get(ctx context.Context, id string) (*Tenant, error)
	DisplayName(ctx context.Context, id string) string
	ListTenantIDs(ctx context.Context) ([]string, error)

	AddMember(ctx context.Context, req AddMemberRequest) (*Membership, error)
	// ResolveTenantID picks preferred when set, then the user's profile
	// tenant, then the tenant of the user's first membership.
	ResolveTenantID(ctx context.Context, userID, preferred string) (string, error)
	Membership(ctx context.Context, userID, tenantID string) (*Membership, error)
	OwnerEmail(ctx context.Context, tenantID string) (string, error)

	LastTestEmailAt(ctx context.Context, tenantID string) (*time.Time, error)
	MarkTestEmailSent(ctx context.Context, tenantID string, at time.Time) error
}

type CreateTenantRequest struct {
	Name             string `validate:"required,max=200"`
	OwnerUserID      string `validate:"required"`
	OwnerEmail       string `validate:"required,email"`
	OwnerDisplayName string
}

type AddMemberRequest struct {
	TenantID    string `validate:"required"`
	UserID      string `validate:"required"`
	Email       string `validate:"omitempty,email"`
	DisplayName string
	Role        Role   `validate:"required,oneof=owner admin member client"`
	ClientID    string `validate:"required_if=Role client"`
	Status      MembershipStatus
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrNotFound             = errors.New("tenant_not_found")
	ErrAlreadyExists        = errors.New("tenant_already_exists")
	ErrTenantNotResolved    = errors.New("tenant_not_resolved")
	ErrMembershipNotFound   = errors.New("membership_not_found")
	ErrMembershipNotActive  = errors.New("membership_not_active")
)
