package domain

import (
	"context"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type ListAuditLogFilter struct {
	Action     string
	TargetType string
	TargetID   string
}

type Repository interface {
	InsertAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, tenantID string, filter ListAuditLogFilter, page pagination.Pagination) ([]*AuditLog, error)
}
