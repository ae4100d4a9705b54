package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type ListInvoiceRequest struct {
	Status    string
	ClientID  string
	PageToken string
	PageSize  int32
}

type ListInvoiceFilter struct {
	Status   InvoiceStatus
	ClientID string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type CreateInvoiceRequest struct {
	ClientID  string          `json:"clientId" validate:"required"`
	Title     string          `json:"title" validate:"required,max=200"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	IssueDate *time.Time      `json:"issueDate"`
	DueDate   *time.Time      `json:"dueDate"`
	Notes     string          `json:"notes" validate:"max=2000"`
	LineItems []LineItem      `json:"lineItems"`
}

// PDF is a rendered invoice ready to be served as an attachment.
type PDF struct {
	Filename string
	Content  []byte
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	SetStatus(ctx context.Context, id string, status InvoiceStatus) (*Invoice, error)
	// RenderPDF enforces the caller's client scope from the context.
	RenderPDF(ctx context.Context, id string) (*PDF, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidClient    = errors.New("invalid_client")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrAccessDenied     = errors.New("access_denied")
	ErrMissingClient    = errors.New("invoice_has_no_client")
	ErrAlreadyExists    = errors.New("invoice_already_exists")
)
