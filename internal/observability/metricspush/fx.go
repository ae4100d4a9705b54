package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultInterval = time.Minute

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg Config, pusher Pusher, log *zap.Logger) {
	if pusher == nil {
		return
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	log = log.Named("metrics.push")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("metrics.push.started", zap.String("exporter", cfg.Exporter), zap.Duration("interval", interval))
			go func() {
				defer close(done)
				loop(ctx, pusher, prometheus.DefaultGatherer, interval, log)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			// Flush the final counters of the last sweep.
			pushOnce(stopCtx, pusher, prometheus.DefaultGatherer, log)
			return nil
		},
	})
}

func loop(ctx context.Context, pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pushOnce(ctx, pusher, gatherer, log)
		case <-ctx.Done():
			return
		}
	}
}

// Push failures never stop the process.
func pushOnce(ctx context.Context, pusher Pusher, gatherer prometheus.Gatherer, log *zap.Logger) {
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := pusher.Push(pushCtx, gatherer); err != nil {
		log.Warn("metrics.push.failed", zap.Error(err))
	}
}
