package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/notification"
	"github.com/smallbiznis/portal/internal/observability"
	"github.com/smallbiznis/portal/internal/observability/metricspush"
	"github.com/smallbiznis/portal/internal/providers"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"github.com/smallbiznis/portal/internal/recurring"
	"github.com/smallbiznis/portal/internal/scheduler"
	"github.com/smallbiznis/portal/internal/store/backend"
	"github.com/smallbiznis/portal/internal/tenant"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		// Nothing scrapes this process, so metrics are pushed.
		metricspush.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		providers.Module,
		backend.Module,

		// Lock backend so several scheduler replicas sweep at most once.
		ratelimit.Module,

		tenant.Module,
		notification.Module,
		recurring.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
