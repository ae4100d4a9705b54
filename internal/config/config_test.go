package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORTAL_BASE_URL", "https://billing.acme.test/")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_SECURE", "")
	t.Setenv("CRON_SECRET", " s3cret ")
	t.Setenv("SCHEDULER_INTERVAL", "15m")
	t.Setenv("SCHEDULER_JOBS", " invoice_sweep, ,")
	t.Setenv("DATABASE_SLOW_QUERY", "1s")

	cfg := Load()

	assert.Equal(t, "https://billing.acme.test", cfg.PortalBaseURL)
	assert.True(t, cfg.SMTP.Secure)
	assert.Equal(t, "s3cret", cfg.CronSecret)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, []string{"invoice_sweep"}, cfg.Scheduler.Jobs)
	assert.Equal(t, time.Second, cfg.DBSlowQuery)
	assert.False(t, cfg.Redis.Enabled())
}

func TestSMTPSecure(t *testing.T) {
	assert.True(t, smtpSecure("TRUE", 587))
	assert.False(t, smtpSecure("false", 465))
	assert.True(t, smtpSecure("", 465))
	assert.False(t, smtpSecure("", 587))
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, defaultPortalBaseURL, normalizeBaseURL("  "))
	assert.Equal(t, "http://localhost:3000", normalizeBaseURL("http://localhost:3000/"))
}

func TestBillingConfigHolderDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewBillingConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 7, cfg.DueWindowDays)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, 5*time.Minute, cfg.TestEmailCooldown)
	assert.Equal(t, 1, cfg.SweepConcurrency)
}

func TestValidateBillingConfig(t *testing.T) {
	cfg := DefaultBillingConfig()
	require.NoError(t, validateBillingConfig(cfg))

	bad := cfg
	bad.SweepConcurrency = 0
	assert.Error(t, validateBillingConfig(bad))

	bad = cfg
	bad.DefaultCurrency = "EURO"
	assert.Error(t, validateBillingConfig(bad))
}
