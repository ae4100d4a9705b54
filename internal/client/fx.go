package client

import (
	"github.com/smallbiznis/portal/internal/client/service"
	"go.uber.org/fx"
)

var Module = fx.Module("client.service",
	fx.Provide(service.New),
)
