package pdf

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		currency string
		amount   string
		want     string
	}{
		{"USD", "100", "USD 100.00"},
		{"USD", "1250.5", "USD 1,250.50"},
		{"EUR", "1234567.891", "EUR 1,234,567.89"},
		{"", "0", "0.00"},
		{"USD", "-42000", "USD -42,000.00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatAmount(tc.currency, decimal.RequireFromString(tc.amount)))
	}
}

func TestRenderInvoiceProducesPDF(t *testing.T) {
	due := time.Date(2025, time.March, 8, 0, 0, 0, 0, time.UTC)
	out, err := New().RenderInvoice(context.Background(), InvoiceDocument{
		TenantName:    "Acme Studio",
		InvoiceNumber: "sub_42_2025-03",
		Status:        "unpaid",
		Amount:        decimal.NewFromInt(100),
		Currency:      "USD",
		DueDate:       &due,
		Notes:         "Thanks",
		LineItems: []LineItem{
			{Description: "Retainer", Amount: decimal.NewFromInt(100)},
		},
		ClientName:  "Client Co",
		ClientEmail: "billing@client.example",
	})
	require.NoError(t, err)
	require.Greater(t, len(out), 4)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestRenderInvoiceHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().RenderInvoice(ctx, InvoiceDocument{})
	assert.ErrorIs(t, err, context.Canceled)
}
