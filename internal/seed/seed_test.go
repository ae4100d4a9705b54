package seed

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/store/sqlstore/sqlstoretest"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	tenantservice "github.com/smallbiznis/portal/internal/tenant/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTenantService(t *testing.T) tenantdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return tenantservice.New(tenantservice.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  sqlstoretest.New(t),
	})
}

func TestEnsureMainTenantSeedsOnce(t *testing.T) {
	tenants := newTenantService(t)
	ctx := context.Background()
	cfg := config.SeedConfig{OwnerUID: "u1", OwnerEmail: "owner@acme.test"}

	tenant, err := EnsureMainTenant(ctx, tenants, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, defaultTenantName, tenant.Name)

	m, err := tenants.Membership(ctx, "u1", tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.RoleOwner, m.Role)

	again, err := EnsureMainTenant(ctx, tenants, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, again)

	ids, err := tenants.ListTenantIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestEnsureMainTenantRequiresEmail(t *testing.T) {
	_, err := EnsureMainTenant(context.Background(), newTenantService(t), config.SeedConfig{OwnerUID: "u1"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingOwnerEmail)
}
