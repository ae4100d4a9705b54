// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	}
	return false
}

type Source string

const (
	SourceSubscription Source = "subscription"
	SourceManual       Source = "manual"
)

type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
}

// Invoice is a billable record for one client. Subscription-derived
// invoices use the billing key as their id, which makes the id both the
// existence check and the write key for a billing period.
type Invoice struct {
	TenantID       string                        `gorm:"primaryKey;type:text" json:"tenantId"`
	ID             string                        `gorm:"primaryKey;type:text" json:"id"`
	ClientID       string                        `gorm:"type:text;index" json:"clientId"`
	ClientName     string                        `gorm:"type:text" json:"clientName"`
	InvoiceNumber  string                        `gorm:"type:text" json:"invoiceNumber"`
	Title          string                        `gorm:"type:text" json:"title"`
	Amount         decimal.Decimal               `gorm:"type:numeric(20,4);not null" json:"amount"`
	Currency       string                        `gorm:"type:text;not null" json:"currency"`
	Status         InvoiceStatus                 `gorm:"type:text;not null" json:"status"`
	IssueDate      time.Time                     `gorm:"not null" json:"issueDate"`
	DueDate        time.Time                     `gorm:"not null" json:"dueDate"`
	Notes          string                        `gorm:"type:text" json:"notes,omitempty"`
	LineItems      datatypes.JSONSlice[LineItem] `json:"lineItems,omitempty"`
	Source         Source                        `gorm:"type:text;not null" json:"source"`
	SubscriptionID string                        `gorm:"type:text;index" json:"subscriptionId,omitempty"`
	BillingKey     string                        `gorm:"type:text" json:"billingKey,omitempty"`
	BillingPeriod  string                        `gorm:"type:text" json:"billingPeriod,omitempty"`
	CreatedAt      time.Time                     `gorm:"not null;index" json:"createdAt"`
	UpdatedAt      time.Time                     `gorm:"not null" json:"updatedAt"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// DisplayNumber falls back to INV-<first 8 chars of id> when no number is set.
func (i Invoice) DisplayNumber() string {
	if i.InvoiceNumber != "" {
		return i.InvoiceNumber
	}
	id := i.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "INV-" + id
}
