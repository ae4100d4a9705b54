package sqlstore

import (
	"context"

	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
)

func (s *Store) InsertAuditLog(ctx context.Context, entry *auditdomain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, filter auditdomain.ListAuditLogFilter, page pagination.Pagination) ([]*auditdomain.AuditLog, error) {
	stmt := s.db.WithContext(ctx).
		Model(&auditdomain.AuditLog{}).
		Where("tenant_id = ?", tenantID)
	if filter.Action != "" {
		stmt = stmt.Where("action = ?", filter.Action)
	}
	if filter.TargetType != "" {
		stmt = stmt.Where("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		stmt = stmt.Where("target_id = ?", filter.TargetID)
	}
	stmt, err := paginate(stmt, page)
	if err != nil {
		return nil, err
	}

	var logs []*auditdomain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
