package identity

import (
	"github.com/smallbiznis/portal/internal/config"
	fbapp "github.com/smallbiznis/portal/internal/providers/firebase"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity",
	fx.Provide(NewVerifier),
)

func NewVerifier(cfg config.Config, app *fbapp.App, log *zap.Logger) Verifier {
	switch cfg.IdentityProvider {
	case config.IdentityJWT:
		log.Info("identity.provider", zap.String("provider", config.IdentityJWT))
		return NewHMACVerifier(cfg.AuthJWTSecret)
	default:
		log.Info("identity.provider", zap.String("provider", config.IdentityFirebase))
		return NewFirebaseVerifier(app)
	}
}
