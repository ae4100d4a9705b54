package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/audit/masking"
	"github.com/smallbiznis/portal/internal/clock"
	obscontext "github.com/smallbiznis/portal/internal/observability/context"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"github.com/smallbiznis/portal/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return auditdomain.ErrInvalidTenant
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}

	log := &auditdomain.AuditLog{
		TenantID:   tenantID,
		ID:         s.genID.Generate().String(),
		ActorType:  auditdomain.ActorType(actorType),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		RequestID:  obscontext.RequestIDFromContext(ctx),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if masked := masking.MaskJSON(entry.Metadata); masked != nil {
		log.Metadata = datatypes.JSONMap(masked)
	}

	if err := s.repo.InsertAuditLog(ctx, log); err != nil {
		s.log.Warn("audit.write_failed", zap.String("tenant_id", tenantID), zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTenant
	}

	filter := auditdomain.ListAuditLogFilter{
		Action:     strings.TrimSpace(req.Action),
		TargetType: strings.TrimSpace(req.TargetType),
		TargetID:   strings.TrimSpace(req.TargetID),
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListAuditLogs(ctx, tenantID, filter, page)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs, info := pagination.BuildPage(items, page.Limit(), func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.CursorFor(item.ID, item.CreatedAt)
	})
	return auditdomain.ListAuditLogResponse{PageInfo: info, AuditLogs: logs}, nil
}
