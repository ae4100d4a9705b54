// Package domain contains recurring subscription models.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/portal/internal/billingcycle"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusCancelled:
		return true
	}
	return false
}

// Subscription is a recurring billing agreement for one client. Price is nil
// when the record has none; such subscriptions fail ValidateForBilling.
type Subscription struct {
	TenantID        string                `gorm:"primaryKey;type:text;index:ix_subscriptions_due,priority:1" json:"tenantId"`
	ID              string                `gorm:"primaryKey;type:text" json:"id"`
	ClientID        string                `gorm:"type:text;index" json:"clientId"`
	ClientName      string                `gorm:"type:text" json:"clientName"`
	Name            string                `gorm:"type:text" json:"name"`
	Price           *decimal.Decimal      `gorm:"type:numeric(20,4)" json:"price"`
	Currency        string                `gorm:"type:text" json:"currency"`
	Interval        billingcycle.Interval `gorm:"type:text" json:"interval"`
	Status          SubscriptionStatus    `gorm:"type:text;not null;index:ix_subscriptions_due,priority:2" json:"status"`
	StartDate       time.Time             `gorm:"not null" json:"startDate"`
	NextBillingDate time.Time             `gorm:"not null;index:ix_subscriptions_due,priority:3" json:"nextBillingDate"`
	CreatedAt       time.Time             `gorm:"not null;index" json:"createdAt"`
	UpdatedAt       time.Time             `gorm:"not null" json:"updatedAt"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsDue reports whether the subscription should be invoiced at asOf.
func (s Subscription) IsDue(asOf time.Time) bool {
	return s.Status == SubscriptionStatusActive && !s.NextBillingDate.After(asOf)
}

const (
	CodeInvalidSubscription = "invalid_subscription"
	CodeInvalidInterval     = "invalid_interval"
	CodeInvalidPrice        = "invalid_price"
)

// BillingError describes why a subscription cannot be invoiced.
type BillingError struct {
	Code    string
	Message string
}

func (e *BillingError) Error() string { return e.Message }

// ValidateForBilling checks the fields the invoice generator copies onto an
// invoice.
func (s Subscription) ValidateForBilling() error {
	if strings.TrimSpace(s.ClientID) == "" || strings.TrimSpace(s.Name) == "" || s.Price == nil || s.Interval == "" {
		return &BillingError{
			Code:    CodeInvalidSubscription,
			Message: "Subscription missing required fields (clientId/name/price/interval)",
		}
	}
	if !s.Interval.Valid() {
		return &BillingError{
			Code:    CodeInvalidInterval,
			Message: fmt.Sprintf("Invalid interval: %s", s.Interval),
		}
	}
	if s.Price.IsNegative() {
		return &BillingError{
			Code:    CodeInvalidPrice,
			Message: fmt.Sprintf("Invalid price: %s", s.Price.String()),
		}
	}
	return nil
}
