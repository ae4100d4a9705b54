package tenantctx

import (
	"context"
	"strings"
)

type keyType string

const (
	TenantIDKey keyType = "tenant_id"
	MemberKey   keyType = "tenant_member"
)

// RoleClient marks members who may only see their own client's records.
const RoleClient = "client"

// Member is the resolved caller inside a tenant.
type Member struct {
	UserID   string
	Role     string
	ClientID string
}

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, strings.TrimSpace(tenantID))
}

func TenantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(TenantIDKey).(string)
	return id, ok && id != ""
}

func WithMember(ctx context.Context, member Member) context.Context {
	return context.WithValue(ctx, MemberKey, member)
}

func MemberFromContext(ctx context.Context) (Member, bool) {
	member, ok := ctx.Value(MemberKey).(Member)
	return member, ok
}

// ClientScope returns the client id a client-role caller is confined to.
func ClientScope(ctx context.Context) (string, bool) {
	member, ok := MemberFromContext(ctx)
	if !ok || member.Role != RoleClient {
		return "", false
	}
	return member.ClientID, true
}
