package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/store/sqlstore/sqlstoretest"
	"github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	return New(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  sqlstoretest.New(t),
	}), clk
}

func TestCreateTenantAddsOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{
		Name:        " Acme Studio ",
		OwnerUserID: "u1",
		OwnerEmail:  "owner@acme.test",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Studio", tenant.Name)
	assert.Equal(t, "acme-studio", tenant.Slug)

	m, err := svc.Membership(ctx, "u1", tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, m.Role)
	assert.True(t, m.IsActive())
	assert.Equal(t, domain.MembershipID("u1", tenant.ID), m.ID)

	email, err := svc.OwnerEmail(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner@acme.test", email)
	assert.Equal(t, "Acme Studio", svc.DisplayName(ctx, tenant.ID))
}

func TestCreateTenantValidates(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateTenantRequest{Name: "", OwnerUserID: "u1", OwnerEmail: "bad"})
	assert.ErrorIs(t, err, validation.ErrValidation)
}

func TestResolveTenantID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ResolveTenantID(ctx, "ghost", "")
	assert.ErrorIs(t, err, domain.ErrTenantNotResolved)

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme", OwnerUserID: "u1", OwnerEmail: "o@acme.test"})
	require.NoError(t, err)

	got, err := svc.ResolveTenantID(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got)

	got, err = svc.ResolveTenantID(ctx, "u1", " other ")
	require.NoError(t, err)
	assert.Equal(t, "other", got)

	_, err = svc.Membership(ctx, "u1", "other")
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestAddClientMemberRequiresClient(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddMember(ctx, domain.AddMemberRequest{TenantID: "t1", UserID: "u2", Role: domain.RoleClient})
	assert.ErrorIs(t, err, validation.ErrValidation)

	m, err := svc.AddMember(ctx, domain.AddMemberRequest{TenantID: "t1", UserID: "u2", Role: domain.RoleClient, ClientID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "c1", m.ClientID)
	assert.Equal(t, domain.MembershipActive, m.Status)
}

func TestTestEmailCooldownBookkeeping(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	last, err := svc.LastTestEmailAt(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, svc.MarkTestEmailSent(ctx, "t1", clk.Now()))
	last, err = svc.LastTestEmailAt(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, clk.Now(), *last, time.Second)
}

func TestDisplayNameFallsBackToID(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, "missing", svc.DisplayName(context.Background(), "missing"))
}
