package sqlstore

import (
	"context"

	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
)

func (s *Store) InsertClient(ctx context.Context, client *clientdomain.Client) error {
	return s.db.WithContext(ctx).Create(client).Error
}

func (s *Store) FindClient(ctx context.Context, tenantID, id string) (*clientdomain.Client, error) {
	var client clientdomain.Client
	return first(s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id), &client)
}

func (s *Store) ListClients(ctx context.Context, tenantID string, filter clientdomain.ListClientFilter, page pagination.Pagination) ([]*clientdomain.Client, error) {
	stmt := s.db.WithContext(ctx).
		Model(&clientdomain.Client{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt, err := paginate(stmt, page)
	if err != nil {
		return nil, err
	}

	var clients []*clientdomain.Client
	if err := stmt.Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) InsertProject(ctx context.Context, project *projectdomain.Project) error {
	return s.db.WithContext(ctx).Create(project).Error
}

func (s *Store) ListProjects(ctx context.Context, tenantID string, filter projectdomain.ListProjectFilter, page pagination.Pagination) ([]*projectdomain.Project, error) {
	stmt := s.db.WithContext(ctx).
		Model(&projectdomain.Project{}).
		Where("tenant_id = ?", tenantID)
	if filter.ClientID != "" {
		stmt = stmt.Where("client_id = ?", filter.ClientID)
	}
	stmt, err := paginate(stmt, page)
	if err != nil {
		return nil, err
	}

	var projects []*projectdomain.Project
	if err := stmt.Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}
