package pdf

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceDocument is everything printed on a single invoice PDF.
type InvoiceDocument struct {
	TenantName string

	InvoiceNumber string
	Status        string
	Amount        decimal.Decimal
	Currency      string
	DueDate       *time.Time
	Notes         string
	LineItems     []LineItem

	ClientName  string
	ClientEmail string
}

type LineItem struct {
	Description string
	Amount      decimal.Decimal
	Currency    string
}

type Renderer interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
}

const placeholder = "—"

func orPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}

// FormatAmount renders an amount with thousands separators, e.g. "USD 1,250.00".
func FormatAmount(currency string, amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if amount.IsNegative() {
		out = "-" + out
	}
	if currency == "" {
		return out
	}
	return currency + " " + out
}
