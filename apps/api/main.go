package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/audit"
	"github.com/smallbiznis/portal/internal/authorization"
	"github.com/smallbiznis/portal/internal/client"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/identity"
	"github.com/smallbiznis/portal/internal/invoice"
	"github.com/smallbiznis/portal/internal/migration"
	"github.com/smallbiznis/portal/internal/notification"
	"github.com/smallbiznis/portal/internal/observability"
	"github.com/smallbiznis/portal/internal/project"
	"github.com/smallbiznis/portal/internal/providers"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"github.com/smallbiznis/portal/internal/recurring"
	"github.com/smallbiznis/portal/internal/seed"
	"github.com/smallbiznis/portal/internal/server"
	"github.com/smallbiznis/portal/internal/store/backend"
	"github.com/smallbiznis/portal/internal/subscription"
	"github.com/smallbiznis/portal/internal/tenant"
	"go.uber.org/fx"
)

// The API process serves HTTP only. Recurring runs come from the cron
// endpoint or a separate scheduler process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		providers.Module,
		backend.Module,
		migration.Module,
		ratelimit.Module,

		authorization.Module,
		identity.Module,
		tenant.Module,
		client.Module,
		project.Module,
		subscription.Module,
		invoice.Module,
		audit.Module,
		notification.Module,
		recurring.Module,
		seed.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
