package tenant

import (
	"github.com/smallbiznis/portal/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(service.New),
)
