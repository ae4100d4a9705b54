// Package firebase initializes the Firebase Admin SDK app shared by the
// Firestore store and the ID token verifier.
package firebase

import (
	"context"
	"errors"
	"sync"

	firebase "firebase.google.com/go"
	"github.com/smallbiznis/portal/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var Module = fx.Module("providers.firebase",
	fx.Provide(New),
)

var ErrNotConfigured = errors.New("firebase_not_configured")

// App builds the Firebase app on first use so deployments that use neither
// Firestore nor Firebase Auth never need credentials.
type App struct {
	cfg config.FirebaseConfig
	log *zap.Logger

	once sync.Once
	app  *firebase.App
	err  error
}

func New(cfg config.Config, log *zap.Logger) *App {
	return &App{cfg: cfg.Firebase, log: log.Named("firebase")}
}

func (a *App) Get(ctx context.Context) (*firebase.App, error) {
	a.once.Do(func() {
		var opts []option.ClientOption
		if a.cfg.ServiceAccountJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(a.cfg.ServiceAccountJSON)))
		} else if a.cfg.ProjectID == "" {
			a.err = ErrNotConfigured
			return
		}

		var fbCfg *firebase.Config
		if a.cfg.ProjectID != "" {
			fbCfg = &firebase.Config{ProjectID: a.cfg.ProjectID}
		}
		a.app, a.err = firebase.NewApp(ctx, fbCfg, opts...)
		if a.err == nil {
			a.log.Info("firebase.initialized", zap.String("project_id", a.cfg.ProjectID))
		}
	})
	return a.app, a.err
}
