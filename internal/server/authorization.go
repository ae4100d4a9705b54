package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/portal/internal/authorization"
)

// authorizeTenantAction gates operator routes on the caller's role in the
// tenant TenantContext resolved.
func (s *Server) authorizeTenantAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeTenantActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeTenantActionWithContext(c *gin.Context, object string, action string) error {
	actor, ok := s.actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	tenantID := c.GetString(contextTenantIDKey)
	if tenantID == "" {
		return ErrForbidden
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authorizeForTenant(c, actor, tenantID, object, action)
}

func (s *Server) authorizeForTenant(c *gin.Context, actor string, tenantID string, object string, action string) error {
	return s.authzSvc.Authorize(c.Request.Context(), actor, tenantID, strings.TrimSpace(object), strings.TrimSpace(action))
}

func (s *Server) actorFromContext(c *gin.Context) (string, bool) {
	if c == nil {
		return "", false
	}
	uid := c.GetString(contextUserIDKey)
	if uid == "" {
		return "", false
	}
	return authorization.UserActor(uid), true
}

// requireTenantAction is the flat-body variant of authorizeTenantAction used
// by the billing trigger endpoints.
func (s *Server) requireTenantAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeTenantActionWithContext(c, object, action); err != nil {
			s.abortForbidden(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) abortForbidden(c *gin.Context, err error) {
	switch {
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, ErrForbidden):
		abortWithMessage(c, http.StatusForbidden, msgNotAuthorized)
	case errors.Is(err, ErrUnauthorized):
		abortWithMessage(c, http.StatusUnauthorized, msgMissingBearer)
	default:
		s.serverError(c, "authorization.failed", err)
	}
}
