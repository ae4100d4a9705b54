package recurring

import (
	"time"

	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/notification"
)

// SubscriptionError records why one due subscription produced no invoice.
type SubscriptionError struct {
	SubscriptionID string `json:"subscriptionId"`
	Message        string `json:"message"`
	Code           string `json:"code,omitempty"`
}

// RunResult is the report of one tenant run. DueCount is the scan size, so
// it can exceed generated+skipped+errors when candidates turn into no-ops.
type RunResult struct {
	RunID          string                    `json:"-"`
	DueCount       int                       `json:"dueCount"`
	GeneratedCount int                       `json:"generatedCount"`
	SkippedCount   int                       `json:"skippedCount"`
	ErrorsCount    int                       `json:"errorsCount"`
	Errors         []SubscriptionError       `json:"errors"`
	Email          notification.EmailSummary `json:"email"`

	Invoices []*invoicedomain.Invoice `json:"-"`
}

type EmailCounts struct {
	Attempted   bool `json:"attempted"`
	SentCount   int  `json:"sentCount"`
	FailedCount int  `json:"failedCount"`
}

type TenantSummary struct {
	TenantID       string      `json:"tenantId"`
	DueCount       int         `json:"dueCount"`
	GeneratedCount int         `json:"generatedCount"`
	SkippedCount   int         `json:"skippedCount"`
	ErrorsCount    int         `json:"errorsCount"`
	Email          EmailCounts `json:"email"`
	Error          string      `json:"error,omitempty"`
}

type SweepTotals struct {
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

type SweepResult struct {
	RanAt       time.Time       `json:"ranAt"`
	TenantCount int             `json:"tenantCount"`
	Totals      SweepTotals     `json:"totals"`
	Results     []TenantSummary `json:"results"`
}

func summarize(tenantID string, r *RunResult) TenantSummary {
	return TenantSummary{
		TenantID:       tenantID,
		DueCount:       r.DueCount,
		GeneratedCount: r.GeneratedCount,
		SkippedCount:   r.SkippedCount,
		ErrorsCount:    r.ErrorsCount,
		Email: EmailCounts{
			Attempted:   r.Email.Attempted,
			SentCount:   r.Email.SentCount,
			FailedCount: r.Email.FailedCount,
		},
	}
}

func (s *SweepResult) add(summary TenantSummary) {
	s.Totals.Generated += summary.GeneratedCount
	s.Totals.Skipped += summary.SkippedCount
	s.Totals.Errors += summary.ErrorsCount
	s.Results = append(s.Results, summary)
}
