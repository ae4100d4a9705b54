package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/portal/internal/billingcycle"
	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type ListSubscriptionRequest struct {
	Status    string
	ClientID  string
	PageToken string
	PageSize  int32
}

type ListSubscriptionFilter struct {
	Status   SubscriptionStatus
	ClientID string
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type CreateSubscriptionRequest struct {
	ClientID  string                `json:"clientId" validate:"required"`
	Name      string                `json:"name" validate:"required,max=200"`
	Price     decimal.Decimal       `json:"price"`
	Currency  string                `json:"currency" validate:"omitempty,len=3"`
	Interval  billingcycle.Interval `json:"interval" validate:"required,oneof=monthly yearly"`
	StartDate time.Time             `json:"startDate" validate:"required"`
	// FirstBillingDate defaults to one interval after StartDate.
	FirstBillingDate *time.Time `json:"firstBillingDate"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	Get(ctx context.Context, id string) (*Subscription, error)
	Pause(ctx context.Context, id string) (*Subscription, error)
	Resume(ctx context.Context, id string) (*Subscription, error)
	Cancel(ctx context.Context, id string) (*Subscription, error)
}

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
