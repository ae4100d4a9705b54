package providers

import (
	"github.com/smallbiznis/portal/internal/providers/email"
	"github.com/smallbiznis/portal/internal/providers/firebase"
	"github.com/smallbiznis/portal/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	firebase.Module,
	pdf.Module,
)
