package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/patrickmn/go-cache"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/tenant/domain"
	"github.com/smallbiznis/portal/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	nameCacheTTL     = 5 * time.Minute
	nameCacheCleanup = 10 * time.Minute
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	names *cache.Cache
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		names: cache.New(nameCacheTTL, nameCacheCleanup),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.OwnerEmail = strings.TrimSpace(req.OwnerEmail)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tenant := &domain.Tenant{
		ID:        s.genID.Generate().String(),
		Name:      req.Name,
		Slug:      slug.Make(req.Name),
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertTenant(ctx, tenant); err != nil {
		return nil, err
	}

	if _, err := s.AddMember(ctx, domain.AddMemberRequest{
		TenantID:    tenant.ID,
		UserID:      req.OwnerUserID,
		Email:       req.OwnerEmail,
		DisplayName: req.OwnerDisplayName,
		Role:        domain.RoleOwner,
		Status:      domain.MembershipActive,
	}); err != nil {
		return nil, err
	}

	s.names.Set(tenant.ID, tenant.DisplayName(), cache.DefaultExpiration)
	s.log.Info("tenant.created", zap.String("tenant_id", tenant.ID), zap.String("slug", tenant.Slug))
	return tenant, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidTenant
	}
	tenant, err := s.repo.FindTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrNotFound
	}
	return tenant, nil
}

// DisplayName never fails; lookup errors fall back to the tenant id.
func (s *Service) DisplayName(ctx context.Context, id string) string {
	if v, ok := s.names.Get(id); ok {
		return v.(string)
	}
	tenant, err := s.repo.FindTenant(ctx, id)
	if err != nil {
		s.log.Warn("tenant.name.lookup_failed", zap.String("tenant_id", id), zap.Error(err))
		return id
	}
	name := id
	if tenant != nil {
		name = tenant.DisplayName()
	}
	s.names.Set(id, name, cache.DefaultExpiration)
	return name
}

func (s *Service) ListTenantIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListTenantIDs(ctx)
}

func (s *Service) AddMember(ctx context.Context, req domain.AddMemberRequest) (*domain.Membership, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.Status == "" {
		req.Status = domain.MembershipActive
	}

	now := s.clock.Now()
	user, err := s.repo.FindUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &domain.User{ID: req.UserID, CreatedAt: now}
	}
	if user.TenantID == "" {
		user.TenantID = req.TenantID
		user.Role = req.Role
		user.ClientID = req.ClientID
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.DisplayName != "" {
		user.DisplayName = req.DisplayName
	}
	user.UpdatedAt = now
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}

	membership := &domain.Membership{
		ID:        domain.MembershipID(req.UserID, req.TenantID),
		UserID:    req.UserID,
		TenantID:  req.TenantID,
		Role:      req.Role,
		Status:    req.Status,
		ClientID:  req.ClientID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertMembership(ctx, membership); err != nil {
		return nil, err
	}
	return membership, nil
}

func (s *Service) ResolveTenantID(ctx context.Context, userID, preferred string) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidUser
	}
	if tenantID := strings.TrimSpace(preferred); tenantID != "" {
		return tenantID, nil
	}

	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user != nil && user.TenantID != "" {
		return user.TenantID, nil
	}

	membership, err := s.repo.FirstMembershipForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if membership != nil && membership.TenantID != "" {
		return membership.TenantID, nil
	}
	return "", domain.ErrTenantNotResolved
}

func (s *Service) Membership(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	membership, err := s.repo.FindMembership(ctx, domain.MembershipID(userID, tenantID))
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, domain.ErrMembershipNotFound
	}
	return membership, nil
}

// OwnerEmail returns "" when the tenant has no owner with an email.
func (s *Service) OwnerEmail(ctx context.Context, tenantID string) (string, error) {
	owner, err := s.repo.FindUserByTenantRole(ctx, tenantID, domain.RoleOwner)
	if err != nil {
		return "", err
	}
	if owner != nil {
		return strings.TrimSpace(owner.Email), nil
	}

	membership, err := s.repo.FirstMembershipByRole(ctx, tenantID, domain.RoleOwner)
	if err != nil || membership == nil {
		return "", err
	}
	user, err := s.repo.FindUser(ctx, membership.UserID)
	if err != nil || user == nil {
		return "", err
	}
	return strings.TrimSpace(user.Email), nil
}

func (s *Service) LastTestEmailAt(ctx context.Context, tenantID string) (*time.Time, error) {
	settings, err := s.repo.FindSettings(ctx, tenantID)
	if err != nil || settings == nil {
		return nil, err
	}
	return settings.EmailTestLastSentAt, nil
}

func (s *Service) MarkTestEmailSent(ctx context.Context, tenantID string, at time.Time) error {
	return s.repo.MarkEmailTestSent(ctx, tenantID, at)
}
