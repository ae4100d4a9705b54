package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"github.com/smallbiznis/portal/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateClientRequest) (*domain.Client, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	client := &domain.Client{
		TenantID:  tenantID,
		ID:        s.genID.Generate().String(),
		Name:      req.Name,
		Email:     req.Email,
		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Service) List(ctx context.Context, req domain.ListClientRequest) (domain.ListClientResponse, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return domain.ListClientResponse{}, domain.ErrInvalidTenant
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListClients(ctx, tenantID, domain.ListClientFilter{Status: req.Status}, page)
	if err != nil {
		return domain.ListClientResponse{}, err
	}

	clients, info := pagination.BuildPage(items, page.Limit(), func(c *domain.Client) pagination.Cursor {
		return pagination.CursorFor(c.ID, c.CreatedAt)
	})
	return domain.ListClientResponse{PageInfo: info, Clients: clients}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Client, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}

	client, err := s.repo.FindClient(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrNotFound
	}
	return client, nil
}
