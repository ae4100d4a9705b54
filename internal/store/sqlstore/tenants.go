package sqlstore

import (
	"context"
	"errors"
	"time"

	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) InsertTenant(ctx context.Context, tenant *tenantdomain.Tenant) error {
	err := s.db.WithContext(ctx).Create(tenant).Error
	if isDuplicate(err) {
		return tenantdomain.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindTenant(ctx context.Context, id string) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	return first(s.db.WithContext(ctx).Where("id = ?", id), &tenant)
}

func (s *Store) ListTenantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&tenantdomain.Tenant{}).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *tenantdomain.User) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "tenant_id", "role", "client_id", "updated_at"}),
		}).
		Create(user).Error
}

func (s *Store) FindUser(ctx context.Context, id string) (*tenantdomain.User, error) {
	var user tenantdomain.User
	return first(s.db.WithContext(ctx).Where("id = ?", id), &user)
}

func (s *Store) FindUserByTenantRole(ctx context.Context, tenantID string, role tenantdomain.Role) (*tenantdomain.User, error) {
	var user tenantdomain.User
	stmt := s.db.WithContext(ctx).
		Where("tenant_id = ? AND role = ?", tenantID, role).
		Order("created_at asc, id asc")
	return first(stmt, &user)
}

func (s *Store) UpsertMembership(ctx context.Context, membership *tenantdomain.Membership) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "status", "client_id", "updated_at"}),
		}).
		Create(membership).Error
}

func (s *Store) FindMembership(ctx context.Context, id string) (*tenantdomain.Membership, error) {
	var membership tenantdomain.Membership
	return first(s.db.WithContext(ctx).Where("id = ?", id), &membership)
}

func (s *Store) FirstMembershipForUser(ctx context.Context, userID string) (*tenantdomain.Membership, error) {
	var membership tenantdomain.Membership
	stmt := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc")
	return first(stmt, &membership)
}

func (s *Store) FirstMembershipByRole(ctx context.Context, tenantID string, role tenantdomain.Role) (*tenantdomain.Membership, error) {
	var membership tenantdomain.Membership
	stmt := s.db.WithContext(ctx).
		Where("tenant_id = ? AND role = ?", tenantID, role).
		Order("created_at asc, id asc")
	return first(stmt, &membership)
}

func (s *Store) FindSettings(ctx context.Context, tenantID string) (*tenantdomain.Settings, error) {
	var settings tenantdomain.Settings
	return first(s.db.WithContext(ctx).Where("tenant_id = ?", tenantID), &settings)
}

func (s *Store) MarkEmailTestSent(ctx context.Context, tenantID string, at time.Time) error {
	sentAt := at
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email_test_last_sent_at", "updated_at"}),
		}).
		Create(&tenantdomain.Settings{
			TenantID:            tenantID,
			EmailTestLastSentAt: &sentAt,
			UpdatedAt:           at,
		}).Error
}

// first loads one row into dst, returning (nil, nil) when nothing matches.
func first[T any](stmt *gorm.DB, dst *T) (*T, error) {
	err := stmt.Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dst, nil
}
