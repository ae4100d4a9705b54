// Package notification emails clients about newly generated invoices and
// sends the operator test summary.
package notification

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// BatchItem is one generated invoice queued for a client notification.
type BatchItem struct {
	InvoiceID string          `json:"invoiceId"`
	Label     string          `json:"invoiceLabel"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	DueDate   string          `json:"dueDate"`
}

// ClientDetail is the delivery outcome for one client.
type ClientDetail struct {
	ClientID string `json:"clientId"`
	Sent     bool   `json:"sent"`
	To       string `json:"to,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
	Response string `json:"response,omitempty"`
}

type EmailSummary struct {
	Attempted   bool           `json:"attempted"`
	SentCount   int            `json:"sentCount"`
	FailedCount int            `json:"failedCount"`
	Details     []ClientDetail `json:"details"`
}

// TestError mirrors the SMTP failure state. Unknown fields are null.
type TestError struct {
	Message      string  `json:"message"`
	Code         *string `json:"code"`
	Response     *string `json:"response"`
	ResponseCode *int    `json:"responseCode"`
	Command      *string `json:"command"`
}

type TestResult struct {
	Attempted bool       `json:"attempted"`
	Sent      bool       `json:"sent"`
	To        *string    `json:"to"`
	Error     *TestError `json:"error"`
}

const (
	msgClientNotFound = "Client doc not found"
	msgEmailMissing   = "Client email missing"
	msgNoOwnerEmail   = "No owner email found"
)

var (
	ErrCooldownActive = errors.New("notification_cooldown_active")
	ErrInvalidTenant  = errors.New("invalid_tenant")
)

// Notifier is the surface the invoice generator depends on.
type Notifier interface {
	DispatchAll(ctx context.Context, tenantID string, batches map[string][]BatchItem) EmailSummary
}
