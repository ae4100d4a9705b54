package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/authorization"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/identity"
	invoicedomain "github.com/smallbiznis/portal/internal/invoice/domain"
	"github.com/smallbiznis/portal/internal/notification"
	"github.com/smallbiznis/portal/internal/observability"
	obsmiddleware "github.com/smallbiznis/portal/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	obstracing "github.com/smallbiznis/portal/internal/observability/tracing"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"github.com/smallbiznis/portal/internal/recurring"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// invoiceGenerator is the slice of *recurring.Generator the HTTP layer calls.
type invoiceGenerator interface {
	RunForTenant(ctx context.Context, tenantID string) (*recurring.RunResult, error)
	RunAllTenants(ctx context.Context) (*recurring.SweepResult, error)
	RunTenantSweep(ctx context.Context, tenantID string) (*recurring.SweepResult, error)
}

type testNotifier interface {
	SendTestNotification(ctx context.Context, tenantID, override string) (notification.TestResult, error)
}

type triggerLimiter interface {
	Allow(ctx context.Context, tenantID, endpoint string) (*ratelimit.Result, error)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	clock           clock.Clock
	verifier        identity.Verifier
	tenantSvc       tenantdomain.Service
	authzSvc        authorization.Service
	clientSvc       clientdomain.Service
	projectSvc      projectdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	auditSvc        auditdomain.Service
	generator       invoiceGenerator
	notifier        testNotifier
	limiter         triggerLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	Verifier        identity.Verifier
	TenantSvc       tenantdomain.Service
	AuthzSvc        authorization.Service
	ClientSvc       clientdomain.Service
	ProjectSvc      projectdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	AuditSvc        auditdomain.Service `optional:"true"`
	Generator       *recurring.Generator
	Notifier        *notification.Dispatcher
	Limiter         *ratelimit.TriggerLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		clock:           p.Clock,
		verifier:        p.Verifier,
		tenantSvc:       p.TenantSvc,
		authzSvc:        p.AuthzSvc,
		clientSvc:       p.ClientSvc,
		projectSvc:      p.ProjectSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		auditSvc:        p.AuditSvc,
		generator:       p.Generator,
		notifier:        p.Notifier,
	}
	// A nil *TriggerLimiter must stay a nil interface.
	if p.Limiter != nil && p.Limiter.Enabled() {
		svc.limiter = p.Limiter
	}

	svc.registerBillingRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	api := s.engine.Group("/api")

	api.POST("/admin/generate-invoices", s.AuthRequired(), s.GenerateInvoices)
	api.GET("/cron/generate-invoices", s.CronRequired(), s.TriggerRateLimit("cron"), s.CronGenerateInvoices)
	api.POST("/admin/test-email",
		s.AuthRequired(),
		s.TenantContext(),
		s.requireTenantAction(authorization.ObjectNotification, authorization.ActionNotificationTest),
		s.TriggerRateLimit("test-email"),
		s.SendTestEmail,
	)
	api.GET("/invoices/:id/pdf", s.AuthRequired(), s.TenantContext(), s.DownloadInvoicePDF)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired(), s.TenantContext())

	// -------- Clients --------
	api.GET("/clients", s.authorizeTenantAction(authorization.ObjectClient, authorization.ActionClientView), s.ListClients)
	api.POST("/clients", s.authorizeTenantAction(authorization.ObjectClient, authorization.ActionClientCreate), s.CreateClient)
	api.GET("/clients/:id", s.authorizeTenantAction(authorization.ObjectClient, authorization.ActionClientView), s.GetClientByID)

	// -------- Projects --------
	api.GET("/projects", s.authorizeTenantAction(authorization.ObjectProject, authorization.ActionProjectView), s.ListProjects)
	api.POST("/projects", s.authorizeTenantAction(authorization.ObjectProject, authorization.ActionProjectCreate), s.CreateProject)

	// -------- Subscriptions --------
	api.GET("/subscriptions", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
	api.POST("/subscriptions", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
	api.GET("/subscriptions/:id", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/pause", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionPause), s.PauseSubscription)
	api.POST("/subscriptions/:id/resume", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionResume), s.ResumeSubscription)
	api.POST("/subscriptions/:id/cancel", s.authorizeTenantAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)

	// -------- Invoices --------
	api.GET("/invoices", s.authorizeTenantAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	api.POST("/invoices", s.authorizeTenantAction(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
	api.GET("/invoices/:id", s.authorizeTenantAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	api.PATCH("/invoices/:id/status", s.authorizeTenantAction(authorization.ObjectInvoice, authorization.ActionInvoiceUpdate), s.UpdateInvoiceStatus)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorizeTenantAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
