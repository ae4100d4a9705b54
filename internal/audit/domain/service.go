package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

// Entry is what callers record; tenant, actor and request id come from the
// context.
type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	Action     string
	TargetType string
	TargetID   string
	PageToken  string
	PageSize   int32
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"auditLogs"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidAction = errors.New("invalid_action")
)
