package rls

import (
	"gorm.io/gorm"
)

// WithTenant scopes Postgres row level security policies to tenantID for
// the rest of the current transaction.
func WithTenant(tx *gorm.DB, tenantID string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config('app.current_tenant_id', ?, true)", tenantID).Error
}
