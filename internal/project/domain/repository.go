package domain

import (
	"context"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type Repository interface {
	InsertProject(ctx context.Context, project *Project) error
	ListProjects(ctx context.Context, tenantID string, filter ListProjectFilter, page pagination.Pagination) ([]*Project, error)
}
