package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type CreateProjectRequest struct {
	ClientID  string     `json:"clientId" validate:"required"`
	Name      string     `json:"name" validate:"required,max=200"`
	Status    Status     `json:"status" validate:"omitempty,oneof=active on_hold completed"`
	StartDate *time.Time `json:"startDate"`
}

type ListProjectRequest struct {
	PageToken string
	PageSize  int32
	ClientID  string
}

type ListProjectFilter struct {
	ClientID string
}

type ListProjectResponse struct {
	pagination.PageInfo
	Projects []Project `json:"projects"`
}

type Service interface {
	Create(ctx context.Context, req CreateProjectRequest) (*Project, error)
	List(ctx context.Context, req ListProjectRequest) (ListProjectResponse, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidClient = errors.New("invalid_client")
)
