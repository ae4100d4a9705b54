package scheduler

import (
	"time"

	"github.com/smallbiznis/portal/internal/config"
)

// Config controls the sweep interval and the lease that keeps replicas from
// sweeping at the same time.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LeaseTTL    time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		JobTimeout:  30 * time.Minute,
		LeaseTTL:    30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.Interval,
		EnabledJobs: cfg.Scheduler.Jobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	if c.LeaseTTL < c.JobTimeout {
		c.LeaseTTL = c.JobTimeout
	}
	return c
}
