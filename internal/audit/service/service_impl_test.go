package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/clock"
	obscontext "github.com/smallbiznis/portal/internal/observability/context"
	"github.com/smallbiznis/portal/internal/store/sqlstore/sqlstoretest"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC))
	return NewService(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  sqlstoretest.New(t),
	}), clk
}

func TestRecordUsesContextActorAndMasksMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantctx.WithTenantID(context.Background(), "t1")
	ctx = obscontext.WithActor(ctx, obscontext.ActorUser, "u1")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionNotificationTestSent,
		TargetType: "notification",
		Metadata:   map[string]any{"to": "owner@studio.test"},
	}))

	out, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, out.AuditLogs, 1)
	got := out.AuditLogs[0]
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, auditdomain.ActorTypeUser, got.ActorType)
	assert.Equal(t, "u1", got.ActorID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "o****@studio.test", got.Metadata["to"])
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantctx.WithTenantID(context.Background(), "t1")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: auditdomain.ActionBillingRunTriggered}))

	out, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, out.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActorTypeSystem, out.AuditLogs[0].ActorType)
	assert.Equal(t, "unknown", out.AuditLogs[0].TargetType)
}

func TestRecordRejects(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Record(context.Background(), auditdomain.Entry{Action: "x"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	err = svc.Record(tenantctx.WithTenantID(context.Background(), "t1"), auditdomain.Entry{Action: " "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListFiltersAndIsolatesTenants(t *testing.T) {
	svc, clk := newTestService(t)
	t1 := tenantctx.WithTenantID(context.Background(), "t1")
	t2 := tenantctx.WithTenantID(context.Background(), "t2")

	for _, action := range []string{auditdomain.ActionSubscriptionPaused, auditdomain.ActionSubscriptionResumed, auditdomain.ActionSubscriptionPaused} {
		clk.Advance(time.Second)
		require.NoError(t, svc.Record(t1, auditdomain.Entry{Action: action, TargetType: "subscription", TargetID: "s1"}))
	}
	require.NoError(t, svc.Record(t2, auditdomain.Entry{Action: auditdomain.ActionSubscriptionPaused, TargetType: "subscription", TargetID: "s9"}))

	paused, err := svc.List(t1, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionSubscriptionPaused})
	require.NoError(t, err)
	assert.Len(t, paused.AuditLogs, 2)

	all, err := svc.List(t1, auditdomain.ListAuditLogRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, all.AuditLogs, 2)
	assert.True(t, all.HasMore)
	assert.Equal(t, auditdomain.ActionSubscriptionPaused, all.AuditLogs[0].Action)
	assert.True(t, all.AuditLogs[0].CreatedAt.After(all.AuditLogs[1].CreatedAt))
}
