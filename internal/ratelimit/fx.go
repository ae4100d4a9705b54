package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("ratelimit",
	fx.Provide(
		NewRedisClient,
		NewTriggerLimiter,
		func(client redis.UniversalClient) *Locker { return NewLocker(client) },
	),
)
