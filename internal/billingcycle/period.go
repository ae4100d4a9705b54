// Package billingcycle holds the calendar arithmetic and key derivation used
// by recurring billing. Everything here is pure and safe for concurrent use.
package billingcycle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

const (
	periodLayout   = "2006-01"
	billingKeyPref = "sub_"
	labelPrefix    = "SUB-"
)

var ErrInvalidInterval = errors.New("invalid_interval")

func (i Interval) Valid() bool {
	switch i {
	case IntervalMonthly, IntervalYearly:
		return true
	default:
		return false
	}
}

// AdvanceMonthly moves t forward by one calendar month. When the target month
// is shorter, the day is clamped to its last day (Jan 31 -> Feb 28/29).
// Time of day and location are kept.
func AdvanceMonthly(t time.Time) time.Time {
	return addMonthsClamped(t, 1)
}

// AdvanceYearly moves t forward by one year; Feb 29 lands on Feb 28 when the
// target year is not a leap year.
func AdvanceYearly(t time.Time) time.Time {
	return addMonthsClamped(t, 12)
}

// Advance dispatches on interval. Unknown intervals return t unchanged.
func Advance(t time.Time, interval Interval) (time.Time, error) {
	switch interval {
	case IntervalMonthly:
		return AdvanceMonthly(t), nil
	case IntervalYearly:
		return AdvanceYearly(t), nil
	default:
		return t, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	last := daysIn(first.Year(), first.Month(), t.Location())
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// PeriodKey renders the billing period a date belongs to as YYYY-MM, using
// the calendar fields of t in its own location.
func PeriodKey(t time.Time) string {
	return t.Format(periodLayout)
}

// BillingKey is the deterministic invoice identifier for one subscription in
// one billing period. It is the only at-most-once guard of the generator.
func BillingKey(subscriptionID string, period time.Time) string {
	return billingKeyPref + subscriptionID + "_" + PeriodKey(period)
}

// InvoiceLabel turns a billing key into the short label shown to clients.
func InvoiceLabel(key string) string {
	if !strings.HasPrefix(key, billingKeyPref) {
		return key
	}
	idx := strings.LastIndex(key, "_")
	return labelPrefix + key[idx+1:]
}

// ParsePeriod parses a YYYY-MM period key.
func ParsePeriod(key string) (time.Time, error) {
	return time.Parse(periodLayout, strings.TrimSpace(key))
}
