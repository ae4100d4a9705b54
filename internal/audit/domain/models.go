// Package domain contains the tenant audit trail.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
	ActorTypeCron   ActorType = "cron"
)

const (
	ActionBillingRunTriggered   = "billing_run.triggered"
	ActionNotificationTestSent  = "notification.test_sent"
	ActionSubscriptionCreated   = "subscription.created"
	ActionSubscriptionPaused    = "subscription.paused"
	ActionSubscriptionResumed   = "subscription.resumed"
	ActionSubscriptionCancelled = "subscription.cancelled"
	ActionInvoiceCreated        = "invoice.created"
	ActionInvoiceStatusChanged  = "invoice.status_changed"
)

// AuditLog records one operator-visible change inside a tenant.
type AuditLog struct {
	TenantID   string            `gorm:"primaryKey;type:text" json:"tenantId"`
	ID         string            `gorm:"primaryKey;type:text" json:"id"`
	ActorType  ActorType         `gorm:"type:text;not null" json:"actorType"`
	ActorID    string            `gorm:"type:text" json:"actorId,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"targetType"`
	TargetID   string            `gorm:"type:text" json:"targetId,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID  string            `gorm:"type:text" json:"requestId,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"createdAt"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
