package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/authorization"
	"github.com/smallbiznis/portal/internal/identity"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/notification"
	obscontext "github.com/smallbiznis/portal/internal/observability/context"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/recurring"
	"go.uber.org/zap"
)

const headerCronSecret = "X-Cron-Secret"

type generateInvoicesRequest struct {
	TenantID string `json:"tenantId"`
}

type generateInvoicesResponse struct {
	TenantID string `json:"tenantId"`
	*recurring.RunResult
}

// GenerateInvoices runs one tenant on operator demand. The tenant may come
// from the body, so it is resolved here rather than by TenantContext.
func (s *Server) GenerateInvoices(c *gin.Context) {
	var req generateInvoicesRequest
	// An empty or malformed body falls back to the caller's own tenant.
	_ = c.ShouldBindJSON(&req)

	if _, ok := s.enterTenant(c, strings.TrimSpace(req.TenantID)); !ok {
		return
	}
	tenantID := c.GetString(contextTenantIDKey)

	actor, _ := s.actorFromContext(c)
	if err := s.authorizeForTenant(c, actor, tenantID, authorization.ObjectBillingRun, authorization.ActionBillingRunTrigger); err != nil {
		s.abortForbidden(c, err)
		return
	}
	if !s.allowTrigger(c, tenantID, "admin") {
		return
	}

	ctx := recurring.WithTrigger(c.Request.Context(), obsmetrics.TriggerAdmin)
	result, err := s.generator.RunForTenant(ctx, tenantID)
	if err != nil {
		s.serverError(c, "billing.admin_run_failed", err)
		return
	}
	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionBillingRunTriggered,
		TargetType: "tenant",
		TargetID:   tenantID,
		Metadata: map[string]any{
			"dueCount":       result.DueCount,
			"generatedCount": result.GeneratedCount,
			"skippedCount":   result.SkippedCount,
			"errorsCount":    result.ErrorsCount,
		},
	})

	c.JSON(http.StatusOK, generateInvoicesResponse{TenantID: tenantID, RunResult: result})
}

// CronRequired checks the shared cron secret from X-Cron-Secret or a bearer
// token. An unset CRON_SECRET rejects every call.
func (s *Server) CronRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.cfg.CronSecret
		secret := c.GetHeader(headerCronSecret)
		if secret == "" {
			secret = identity.BearerToken(c.GetHeader("Authorization"))
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(expected)) != 1 {
			abortWithMessage(c, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		ctx := recurring.WithTrigger(c.Request.Context(), obsmetrics.TriggerCron)
		ctx = obscontext.WithActor(ctx, obscontext.ActorCron, "")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CronGenerateInvoices sweeps every tenant, or only ?tenantId= when given.
func (s *Server) CronGenerateInvoices(c *gin.Context) {
	ctx := c.Request.Context()

	if tenantID := strings.TrimSpace(c.Query("tenantId")); tenantID != "" {
		sweep, err := s.generator.RunTenantSweep(ctx, tenantID)
		if err != nil {
			s.log.Error("billing.cron.tenant_failed", zap.String("tenant_id", tenantID), zap.Error(err))
			ranAt := s.clock.Now()
			if sweep != nil {
				ranAt = sweep.RanAt
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"ranAt": ranAt.UTC().Format(time.RFC3339Nano),
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, sweep)
		return
	}

	sweep, err := s.generator.RunAllTenants(ctx)
	if err != nil {
		s.log.Error("billing.cron.sweep_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ranAt": s.clock.Now().UTC().Format(time.RFC3339Nano),
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, sweep)
}

type testEmailRequest struct {
	To string `json:"to"`
}

// SendTestEmail mails the tenant owner (or body.to) a sample run summary.
func (s *Server) SendTestEmail(c *gin.Context) {
	var req testEmailRequest
	_ = c.ShouldBindJSON(&req)

	tenantID := c.GetString(contextTenantIDKey)
	result, err := s.notifier.SendTestNotification(c.Request.Context(), tenantID, strings.TrimSpace(req.To))
	if err != nil {
		if errors.Is(err, notification.ErrCooldownActive) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": msgCooldownActive,
				"email": notification.TestResult{},
			})
			return
		}
		s.serverError(c, "notification.test_failed", err)
		return
	}
	metadata := map[string]any{"sent": result.Sent}
	if result.To != nil {
		metadata["to"] = *result.To
	}
	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionNotificationTestSent,
		TargetType: "notification",
		Metadata:   metadata,
	})

	c.JSON(http.StatusOK, gin.H{"email": result})
}

// DownloadInvoicePDF streams the rendered invoice. Client-role callers only
// reach invoices of their own client.
func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	pdf, err := s.invoiceSvc.RenderPDF(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, invoicedomain.ErrInvoiceNotFound), errors.Is(err, invoicedomain.ErrInvalidInvoiceID):
			abortWithMessage(c, http.StatusNotFound, msgInvoiceNotFound)
		case errors.Is(err, invoicedomain.ErrAccessDenied):
			abortWithMessage(c, http.StatusForbidden, msgAccessDenied)
		case errors.Is(err, invoicedomain.ErrMissingClient):
			abortWithMessage(c, http.StatusBadRequest, msgInvoiceHasNoClient)
		default:
			s.serverError(c, "invoice.pdf_failed", err)
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pdf.Filename))
	c.Data(http.StatusOK, "application/pdf", pdf.Content)
}
