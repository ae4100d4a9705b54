package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/portal/internal/config"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyTrigger = "portal:ratelimit:trigger:%s:%s"

type TriggerLimiterParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Client  redis.UniversalClient `optional:"true"`
	Metrics *obsmetrics.Metrics   `optional:"true"`
}

// TriggerLimiter throttles manual billing runs and test emails per tenant.
type TriggerLimiter struct {
	log     *zap.Logger
	bucket  *TokenBucket
	rate    float64
	burst   int
	metrics *obsmetrics.Metrics
}

func NewTriggerLimiter(p TriggerLimiterParams) *TriggerLimiter {
	limiter := &TriggerLimiter{
		log:     p.Log.Named("ratelimit.trigger"),
		rate:    p.Config.Redis.TriggerRate,
		burst:   p.Config.Redis.TriggerBurst,
		metrics: p.Metrics,
	}
	if p.Client != nil && limiter.rate > 0 && limiter.burst > 0 {
		limiter.bucket = NewTokenBucket(p.Client)
	}
	return limiter
}

func (l *TriggerLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open on Redis errors; the error is still returned for logging.
func (l *TriggerLimiter) Allow(ctx context.Context, tenantID, endpoint string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}

	tenantID = strings.TrimSpace(tenantID)
	key := fmt.Sprintf(keyTrigger, endpoint, tenantID)
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("ratelimit.check_failed", zap.String("tenant_id", tenantID), zap.String("endpoint", endpoint), zap.Error(err))
		return &Result{Allowed: true, Limit: l.burst}, err
	}
	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, tenantID, endpoint)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, tenantID, endpoint, "token_bucket")
	}
	return res, nil
}
