// Package domain contains the tenant-scoped client (customer) model.
package domain

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Client is a billed party inside one tenant. Email is optional; clients
// without one simply receive no invoice notifications.
type Client struct {
	TenantID  string    `gorm:"primaryKey;type:text" json:"tenantId"`
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Email     string    `gorm:"type:text" json:"email,omitempty"`
	Status    Status    `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (Client) TableName() string { return "clients" }
