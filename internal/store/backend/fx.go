// Package backend selects the configured store implementation and exposes
// it to the domain packages.
package backend

import (
	"context"
	"fmt"

	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/config"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	fbapp "github.com/smallbiznis/portal/internal/providers/firebase"
	"github.com/smallbiznis/portal/internal/store"
	"github.com/smallbiznis/portal/internal/store/fsstore"
	"github.com/smallbiznis/portal/internal/store/sqlstore"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("store",
	fx.Provide(
		New,
		func(s store.Store) store.BillingStore { return s },
		func(s store.Store) tenantdomain.Repository { return s },
		func(s store.Store) clientdomain.Repository { return s },
		func(s store.Store) projectdomain.Repository { return s },
		func(s store.Store) subscriptiondomain.Repository { return s },
		func(s store.Store) invoicedomain.Repository { return s },
		func(s store.Store) auditdomain.Repository { return s },
	),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Firebase  *fbapp.App
}

func New(p Params) (store.Store, error) {
	switch p.Config.StoreBackend {
	case config.StoreSQL, "":
		conn, err := db.Open(p.Lifecycle, p.Config, p.Log)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(conn, p.Log), nil

	case config.StoreFirestore:
		app, err := p.Firebase.Get(context.Background())
		if err != nil {
			return nil, err
		}
		client, err := app.Firestore(context.Background())
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		st := fsstore.New(client, p.Log)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error { return st.Close() },
		})
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", p.Config.StoreBackend)
	}
}
