// Package seed bootstraps the first tenant of an empty deployment.
package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/portal/internal/config"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultTenantName = "Main"

var Module = fx.Module("seed",
	fx.Invoke(run),
)

var ErrMissingOwnerEmail = errors.New("seed owner email is required")

func run(lc fx.Lifecycle, cfg config.Config, tenants tenantdomain.Service, log *zap.Logger) {
	if !cfg.Seed.Enabled() {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := EnsureMainTenant(ctx, tenants, cfg.Seed, log)
			return err
		},
	})
}

// EnsureMainTenant creates a tenant owned by the configured user when the
// store holds no tenants yet. It returns the new tenant, or nil when the
// store was already populated.
func EnsureMainTenant(ctx context.Context, tenants tenantdomain.Service, cfg config.SeedConfig, log *zap.Logger) (*tenantdomain.Tenant, error) {
	ids, err := tenants.ListTenantIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		log.Debug("seed.skipped", zap.Int("tenants", len(ids)))
		return nil, nil
	}

	email := strings.TrimSpace(cfg.OwnerEmail)
	if email == "" {
		return nil, ErrMissingOwnerEmail
	}
	name := strings.TrimSpace(cfg.TenantName)
	if name == "" {
		name = defaultTenantName
	}

	tenant, err := tenants.Create(ctx, tenantdomain.CreateTenantRequest{
		Name:        name,
		OwnerUserID: strings.TrimSpace(cfg.OwnerUID),
		OwnerEmail:  email,
	})
	if err != nil {
		return nil, err
	}
	log.Info("seed.tenant_created",
		zap.String("tenant_id", tenant.ID),
		zap.String("owner_uid", cfg.OwnerUID),
	)
	return tenant, nil
}
