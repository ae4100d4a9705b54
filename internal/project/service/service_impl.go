package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/project/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"github.com/smallbiznis/portal/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Clients clientdomain.Repository
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	clients clientdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("project.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		clients: p.Clients,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProjectRequest) (*domain.Project, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	client, err := s.clients.FindClient(ctx, tenantID, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrInvalidClient
	}

	status := req.Status
	if status == "" {
		status = domain.StatusActive
	}

	now := s.clock.Now()
	project := &domain.Project{
		TenantID:   tenantID,
		ID:         s.genID.Generate().String(),
		ClientID:   client.ID,
		ClientName: client.Name,
		Name:       req.Name,
		Status:     status,
		StartDate:  req.StartDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// List restricts callers with the client role to their own projects.
func (s *Service) List(ctx context.Context, req domain.ListProjectRequest) (domain.ListProjectResponse, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return domain.ListProjectResponse{}, domain.ErrInvalidTenant
	}

	filter := domain.ListProjectFilter{ClientID: strings.TrimSpace(req.ClientID)}
	if clientID, scoped := tenantctx.ClientScope(ctx); scoped {
		if clientID == "" {
			return domain.ListProjectResponse{Projects: []domain.Project{}}, nil
		}
		filter.ClientID = clientID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListProjects(ctx, tenantID, filter, page)
	if err != nil {
		return domain.ListProjectResponse{}, err
	}
	projects, info := pagination.BuildPage(items, page.Limit(), func(p *domain.Project) pagination.Cursor {
		return pagination.CursorFor(p.ID, p.CreatedAt)
	})
	return domain.ListProjectResponse{PageInfo: info, Projects: projects}, nil
}
