package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/billingcycle"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/config"
	subscriptiondomain "github.com/smallbiznis/portal/internal/subscription/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"github.com/smallbiznis/portal/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Repo    subscriptiondomain.Repository
	Clients clientdomain.Repository
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	repo    subscriptiondomain.Repository
	clients clientdomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		repo:    p.Repo,
		clients: p.Clients,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (*subscriptiondomain.Subscription, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidTenant
	}

	req.ClientID = strings.TrimSpace(req.ClientID)
	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, subscriptiondomain.ErrInvalidPrice
	}

	client, err := s.clients.FindClient(ctx, tenantID, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, subscriptiondomain.ErrInvalidClient
	}

	start := req.StartDate.UTC()
	next := start
	if req.FirstBillingDate != nil {
		next = req.FirstBillingDate.UTC()
	} else if next, err = billingcycle.Advance(start, req.Interval); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.billing.Get().DefaultCurrency
	}

	price := req.Price
	now := s.clock.Now()
	subscription := &subscriptiondomain.Subscription{
		TenantID:        tenantID,
		ID:              s.genID.Generate().String(),
		ClientID:        client.ID,
		ClientName:      client.Name,
		Name:            req.Name,
		Price:           &price,
		Currency:        currency,
		Interval:        req.Interval,
		Status:          subscriptiondomain.SubscriptionStatusActive,
		StartDate:       start,
		NextBillingDate: next,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.InsertSubscription(ctx, subscription); err != nil {
		return nil, err
	}

	s.log.Info("subscription.created",
		zap.String("tenant_id", tenantID),
		zap.String("subscription_id", subscription.ID),
		zap.Time("next_billing_date", next),
	)
	return subscription, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidTenant
	}

	status, err := parseStatusFilter(req.Status)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}
	filter := subscriptiondomain.ListSubscriptionFilter{
		Status:   status,
		ClientID: strings.TrimSpace(req.ClientID),
	}
	if clientID, scoped := tenantctx.ClientScope(ctx); scoped {
		if clientID == "" {
			return subscriptiondomain.ListSubscriptionResponse{Subscriptions: []subscriptiondomain.Subscription{}}, nil
		}
		filter.ClientID = clientID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListSubscriptions(ctx, tenantID, filter, page)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	subscriptions, info := pagination.BuildPage(items, page.Limit(), func(sub *subscriptiondomain.Subscription) pagination.Cursor {
		return pagination.CursorFor(sub.ID, sub.CreatedAt)
	})
	return subscriptiondomain.ListSubscriptionResponse{PageInfo: info, Subscriptions: subscriptions}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}

	item, err := s.repo.FindSubscription(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if clientID, scoped := tenantctx.ClientScope(ctx); scoped && item.ClientID != clientID {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return item, nil
}

func (s *Service) Pause(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, subscriptiondomain.SubscriptionStatusPaused)
}

func (s *Service) Resume(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, subscriptiondomain.SubscriptionStatusActive)
}

func (s *Service) Cancel(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	return s.transition(ctx, id, subscriptiondomain.SubscriptionStatusCancelled)
}

func (s *Service) transition(ctx context.Context, id string, target subscriptiondomain.SubscriptionStatus) (*subscriptiondomain.Subscription, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}

	var from subscriptiondomain.SubscriptionStatus
	updated, err := s.repo.MutateSubscription(ctx, tenantID, id, func(sub *subscriptiondomain.Subscription) error {
		from = sub.Status
		if sub.Status == target {
			return nil
		}
		if !isTransitionAllowed(sub.Status, target) {
			return subscriptiondomain.ErrInvalidTransition
		}
		sub.Status = target
		sub.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription.transitioned",
		zap.String("tenant_id", tenantID),
		zap.String("subscription_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return updated, nil
}

// Cancelled is terminal.
func isTransitionAllowed(current, target subscriptiondomain.SubscriptionStatus) bool {
	switch current {
	case subscriptiondomain.SubscriptionStatusActive:
		return target == subscriptiondomain.SubscriptionStatusPaused || target == subscriptiondomain.SubscriptionStatusCancelled
	case subscriptiondomain.SubscriptionStatusPaused:
		return target == subscriptiondomain.SubscriptionStatusActive || target == subscriptiondomain.SubscriptionStatusCancelled
	default:
		return false
	}
}

func parseStatusFilter(value string) (subscriptiondomain.SubscriptionStatus, error) {
	status := subscriptiondomain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(value)))
	if status == "" {
		return "", nil
	}
	if !status.Valid() {
		return "", subscriptiondomain.ErrInvalidStatus
	}
	return status, nil
}
