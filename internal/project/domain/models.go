package domain

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
)

type Project struct {
	TenantID   string     `gorm:"primaryKey;type:text" json:"tenantId"`
	ID         string     `gorm:"primaryKey;type:text" json:"id"`
	ClientID   string     `gorm:"type:text;not null;index" json:"clientId"`
	ClientName string     `gorm:"type:text" json:"clientName"`
	Name       string     `gorm:"type:text;not null" json:"name"`
	Status     Status     `gorm:"type:text;not null" json:"status"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;index" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updatedAt"`
}

func (Project) TableName() string { return "projects" }
