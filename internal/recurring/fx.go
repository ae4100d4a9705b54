package recurring

import "go.uber.org/fx"

var Module = fx.Module("recurring",
	fx.Provide(NewGenerator),
)
