// Package domain contains tenant, user and membership models.
package domain

import "time"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleClient:
		return true
	}
	return false
}

// IsOperator reports whether the role may run billing and manage tenant data.
func (r Role) IsOperator() bool {
	return r == RoleOwner || r == RoleAdmin
}

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInvited  MembershipStatus = "invited"
	MembershipDisabled MembershipStatus = "disabled"
)

// Tenant is an isolated customer organization owning all billing data.
type Tenant struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Slug      string    `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug" json:"slug"`
	Status    string    `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (Tenant) TableName() string { return "tenants" }

// DisplayName falls back to the tenant id when no name is set.
func (t Tenant) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// User is a profile keyed by the identity provider uid.
type User struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	Email       string    `gorm:"type:text;index" json:"email"`
	DisplayName string    `gorm:"type:text" json:"displayName"`
	TenantID    string    `gorm:"type:text;index:ix_users_tenant_role,priority:1" json:"tenantId"`
	Role        Role      `gorm:"type:text;index:ix_users_tenant_role,priority:2" json:"role"`
	ClientID    string    `gorm:"type:text" json:"clientId,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// Membership links a user to a tenant. Its id is MembershipID(userID, tenantID).
type Membership struct {
	ID        string           `gorm:"primaryKey;type:text" json:"id"`
	UserID    string           `gorm:"type:text;not null;index" json:"userId"`
	TenantID  string           `gorm:"type:text;not null;index:ix_memberships_tenant_role,priority:1" json:"tenantId"`
	Role      Role             `gorm:"type:text;not null;index:ix_memberships_tenant_role,priority:2" json:"role"`
	Status    MembershipStatus `gorm:"type:text;not null" json:"status"`
	ClientID  string           `gorm:"type:text" json:"clientId,omitempty"`
	CreatedAt time.Time        `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time        `gorm:"not null" json:"updatedAt"`
}

func (Membership) TableName() string { return "memberships" }

func MembershipID(userID, tenantID string) string {
	return userID + "_" + tenantID
}

func (m Membership) IsActive() bool {
	return m.Status == MembershipActive
}

// Settings holds per-tenant bookkeeping such as the last test notification.
type Settings struct {
	TenantID            string     `gorm:"primaryKey;type:text" json:"tenantId"`
	EmailTestLastSentAt *time.Time `json:"emailTestLastSentAt,omitempty"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updatedAt"`
}

func (Settings) TableName() string { return "tenant_settings" }
