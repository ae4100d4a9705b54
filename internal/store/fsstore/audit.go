package fsstore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
	"gorm.io/datatypes"
)

type auditLogDoc struct {
	ActorType  string         `firestore:"actorType"`
	ActorID    string         `firestore:"actorId,omitempty"`
	Action     string         `firestore:"action"`
	TargetType string         `firestore:"targetType"`
	TargetID   string         `firestore:"targetId,omitempty"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
	RequestID  string         `firestore:"requestId,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
}

func toAuditLogDoc(l *auditdomain.AuditLog) auditLogDoc {
	return auditLogDoc{
		ActorType:  string(l.ActorType),
		ActorID:    l.ActorID,
		Action:     l.Action,
		TargetType: l.TargetType,
		TargetID:   l.TargetID,
		Metadata:   l.Metadata,
		RequestID:  l.RequestID,
		CreatedAt:  l.CreatedAt,
	}
}

func (d auditLogDoc) model(tenantID, id string) *auditdomain.AuditLog {
	out := &auditdomain.AuditLog{
		TenantID:   tenantID,
		ID:         id,
		ActorType:  auditdomain.ActorType(d.ActorType),
		ActorID:    d.ActorID,
		Action:     d.Action,
		TargetType: d.TargetType,
		TargetID:   d.TargetID,
		RequestID:  d.RequestID,
		CreatedAt:  d.CreatedAt,
	}
	if len(d.Metadata) > 0 {
		out.Metadata = datatypes.JSONMap(d.Metadata)
	}
	return out
}

func (s *Store) InsertAuditLog(ctx context.Context, entry *auditdomain.AuditLog) error {
	if entry == nil {
		return nil
	}
	_, err := s.tenantCol(entry.TenantID, colAuditLogs).Doc(entry.ID).Create(ctx, toAuditLogDoc(entry))
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, filter auditdomain.ListAuditLogFilter, page pagination.Pagination) ([]*auditdomain.AuditLog, error) {
	q := s.tenantCol(tenantID, colAuditLogs).Query
	if filter.Action != "" {
		q = q.Where("action", "==", filter.Action)
	}
	if filter.TargetType != "" {
		q = q.Where("targetType", "==", filter.TargetType)
	}
	if filter.TargetID != "" {
		q = q.Where("targetId", "==", filter.TargetID)
	}
	q, err := paginate(q, page)
	if err != nil {
		return nil, err
	}
	return collect(ctx, q, func(snap *firestore.DocumentSnapshot) (*auditdomain.AuditLog, error) {
		var doc auditLogDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return doc.model(tenantID, snap.Ref.ID), nil
	})
}
