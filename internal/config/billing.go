package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig carries the tunables of the recurring invoice generator.
type BillingConfig struct {
	DueWindowDays     int           `mapstructure:"dueWindowDays"`
	DefaultCurrency   string        `mapstructure:"defaultCurrency"`
	TestEmailCooldown time.Duration `mapstructure:"testEmailCooldown"`
	SweepConcurrency  int           `mapstructure:"sweepConcurrency"`
	TenantRunTimeout  time.Duration `mapstructure:"tenantRunTimeout"`

	NotificationFromName string `mapstructure:"notificationFromName"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DueWindowDays:     7,
		DefaultCurrency:   "USD",
		TestEmailCooldown: 5 * time.Minute,
		SweepConcurrency:  1,
		TenantRunTimeout:  5 * time.Minute,

		NotificationFromName: "Billing Portal",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config, mostly for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("config.billing")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/portal/config")
	v.AddConfigPath("/etc/portal")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.dueWindowDays", defaults.DueWindowDays)
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.testEmailCooldown", defaults.TestEmailCooldown)
	v.SetDefault("billing.sweepConcurrency", defaults.SweepConcurrency)
	v.SetDefault("billing.tenantRunTimeout", defaults.TenantRunTimeout)
	v.SetDefault("billing.notificationFromName", defaults.NotificationFromName)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DueWindowDays < 0 {
		return errors.New("billing.dueWindowDays cannot be negative")
	}
	if len(strings.TrimSpace(cfg.DefaultCurrency)) != 3 {
		return errors.New("billing.defaultCurrency must be a 3 letter code")
	}
	if cfg.TestEmailCooldown < 0 {
		return errors.New("billing.testEmailCooldown cannot be negative")
	}
	if cfg.SweepConcurrency < 1 {
		return errors.New("billing.sweepConcurrency must be at least 1")
	}
	return nil
}
