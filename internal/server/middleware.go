package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/portal/internal/identity"
	obscontext "github.com/smallbiznis/portal/internal/observability/context"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	HeaderTenant       = "X-Tenant-ID"
	contextUserIDKey   = "user_id"
	contextTenantIDKey = "tenant_id"
	contextMemberKey   = "tenant_member"

	msgMissingBearer      = "Missing Authorization Bearer token"
	msgInvalidToken       = "Invalid or expired token"
	msgMissingTenant      = "User missing tenantId"
	msgMembershipNotFound = "Tenant membership not found"
	msgNotAuthorized      = "Not authorized"
	msgUnauthorized       = "Unauthorized"
	msgInvoiceNotFound    = "Invoice not found"
	msgAccessDenied       = "Access denied"
	msgInvoiceHasNoClient = "Invoice has no client"
	msgCooldownActive     = "Please wait 5 minutes"
	msgRateLimited        = "rate_limited"
)

// AuthRequired verifies the bearer ID token and stores the caller uid.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortWithMessage(c, http.StatusUnauthorized, msgMissingBearer)
			return
		}

		id, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			s.log.Info("auth.token_rejected", zap.Error(err))
			abortWithMessage(c, http.StatusUnauthorized, msgInvalidToken)
			return
		}

		c.Set(contextUserIDKey, id.UID)
		ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorUser, id.UID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TenantContext resolves the caller's tenant (X-Tenant-ID header, then the
// user profile, then the first membership) and requires an active
// membership in it.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.enterTenant(c, c.GetHeader(HeaderTenant)); !ok {
			return
		}
		c.Next()
	}
}

// enterTenant writes the response and returns false when the caller cannot
// act inside a tenant.
func (s *Server) enterTenant(c *gin.Context, preferred string) (*tenantdomain.Membership, bool) {
	uid := c.GetString(contextUserIDKey)
	if uid == "" {
		abortWithMessage(c, http.StatusUnauthorized, msgMissingBearer)
		return nil, false
	}
	ctx := c.Request.Context()

	tenantID, err := s.tenantSvc.ResolveTenantID(ctx, uid, preferred)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrTenantNotResolved) {
			abortWithMessage(c, http.StatusForbidden, msgMissingTenant)
			return nil, false
		}
		s.serverError(c, "tenant.resolve_failed", err)
		return nil, false
	}

	membership, err := s.tenantSvc.Membership(ctx, uid, tenantID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrMembershipNotFound) {
			abortWithMessage(c, http.StatusForbidden, msgMembershipNotFound)
			return nil, false
		}
		s.serverError(c, "tenant.membership_failed", err)
		return nil, false
	}
	if !membership.IsActive() {
		abortWithMessage(c, http.StatusForbidden, msgNotAuthorized)
		return nil, false
	}

	member := tenantctx.Member{
		UserID:   uid,
		Role:     strings.ToLower(string(membership.Role)),
		ClientID: membership.ClientID,
	}
	ctx = tenantctx.WithTenantID(ctx, tenantID)
	ctx = tenantctx.WithMember(ctx, member)
	ctx = obscontext.WithTenantID(ctx, tenantID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(contextTenantIDKey, tenantID)
	c.Set(contextMemberKey, member)
	return membership, true
}

func (s *Server) serverError(c *gin.Context, event string, err error) {
	s.log.Error(event, zap.Error(err))
	abortWithMessage(c, http.StatusInternalServerError, err.Error())
}

// TriggerRateLimit applies the per-tenant token bucket to endpoints whose
// tenant is known before the handler runs. Unscoped cron sweeps share the
// "global" bucket.
func (s *Server) TriggerRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString(contextTenantIDKey)
		if tenantID == "" {
			tenantID = strings.TrimSpace(c.Query("tenantId"))
		}
		if tenantID == "" {
			tenantID = "global"
		}
		if !s.allowTrigger(c, tenantID, endpoint) {
			return
		}
		c.Next()
	}
}

// allowTrigger fails open when the limiter errors.
func (s *Server) allowTrigger(c *gin.Context, tenantID, endpoint string) bool {
	if s.limiter == nil {
		return true
	}
	res, err := s.limiter.Allow(c.Request.Context(), tenantID, endpoint)
	if err != nil || res == nil || res.Allowed {
		return true
	}
	if res.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	}
	abortWithMessage(c, http.StatusTooManyRequests, msgRateLimited)
	return false
}
