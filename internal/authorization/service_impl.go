package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectBillingRun   = "billing_run"
	ObjectNotification = "notification"
	ObjectClient       = "client"
	ObjectProject      = "project"
	ObjectSubscription = "subscription"
	ObjectInvoice      = "invoice"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionBillingRunTrigger = "billing_run.trigger"
	ActionNotificationTest  = "notification.test"

	ActionClientView   = "client.view"
	ActionClientCreate = "client.create"

	ActionProjectView   = "project.view"
	ActionProjectCreate = "project.create"

	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionCreate = "subscription.create"
	ActionSubscriptionPause  = "subscription.pause"
	ActionSubscriptionResume = "subscription.resume"
	ActionSubscriptionCancel = "subscription.cancel"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceCreate   = "invoice.create"
	ActionInvoiceUpdate   = "invoice.update"
	ActionInvoiceDownload = "invoice.download"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Tenants  tenantdomain.Repository
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	tenants  tenantdomain.Repository
}

// NewEnforcer builds an in-memory enforcer seeded with the role policies.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		tenants:  p.Tenants,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, tenantID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := s.resolveRole(ctx, actor, tenantID)
	if err != nil {
		s.logDenied(actor, tenantID, object, action, err)
		return err
	}

	domain := fmt.Sprintf("tenant:%s", tenantID)
	if err := s.ensureGrouping(actor, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(actor, tenantID, object, action, ErrForbidden)
		return ErrForbidden
	}
	return nil
}

// resolveRole maps the actor to its casbin role inside the tenant. Users
// need an active membership.
func (s *ServiceImpl) resolveRole(ctx context.Context, actor string, tenantID string) (string, error) {
	if actor == "system" {
		return "role:system", nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", ErrInvalidActor
	}
	uid := strings.TrimPrefix(actor, "user:")
	if uid == "" {
		return "", ErrInvalidActor
	}

	membership, err := s.tenants.FindMembership(ctx, tenantdomain.MembershipID(uid, tenantID))
	if err != nil {
		return "", err
	}
	if membership == nil || !membership.IsActive() {
		return "", ErrForbidden
	}
	return fmt.Sprintf("role:%s", strings.ToLower(string(membership.Role))), nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) logDenied(actor, tenantID, object, action string, reason error) {
	s.log.Info("authorization.denied",
		zap.String("actor", actor),
		zap.String("tenant_id", tenantID),
		zap.String("object", object),
		zap.String("action", action),
		zap.Error(reason),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	view := [][]string{
		{ObjectClient, ActionClientView},
		{ObjectProject, ActionProjectView},
		{ObjectSubscription, ActionSubscriptionView},
		{ObjectInvoice, ActionInvoiceView},
		{ObjectInvoice, ActionInvoiceDownload},
	}
	manage := [][]string{
		{ObjectBillingRun, ActionBillingRunTrigger},
		{ObjectNotification, ActionNotificationTest},
		{ObjectClient, ActionClientCreate},
		{ObjectProject, ActionProjectCreate},
		{ObjectSubscription, ActionSubscriptionCreate},
		{ObjectSubscription, ActionSubscriptionPause},
		{ObjectSubscription, ActionSubscriptionResume},
		{ObjectSubscription, ActionSubscriptionCancel},
		{ObjectInvoice, ActionInvoiceCreate},
		{ObjectInvoice, ActionInvoiceUpdate},
		{ObjectAuditLog, ActionAuditLogView},
	}

	var policies [][]string
	for _, role := range []string{"role:owner", "role:admin"} {
		for _, p := range append(append([][]string{}, view...), manage...) {
			policies = append(policies, []string{role, p[0], p[1]})
		}
	}
	for _, p := range view {
		policies = append(policies, []string{"role:member", p[0], p[1]})
	}

	// Clients only see their own records; row scoping happens in the services.
	policies = append(policies,
		[]string{"role:client", ObjectProject, ActionProjectView},
		[]string{"role:client", ObjectSubscription, ActionSubscriptionView},
		[]string{"role:client", ObjectInvoice, ActionInvoiceView},
		[]string{"role:client", ObjectInvoice, ActionInvoiceDownload},

		// Scheduler and cron sweeps.
		[]string{"role:system", ObjectBillingRun, ActionBillingRunTrigger},
	)

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
