package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type ListClientRequest struct {
	PageToken string
	PageSize  int32
	Status    Status
}

type ListClientFilter struct {
	Status Status
}

type ListClientResponse struct {
	pagination.PageInfo
	Clients []Client `json:"clients"`
}

type CreateClientRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

type Service interface {
	Create(ctx context.Context, req CreateClientRequest) (*Client, error)
	List(ctx context.Context, req ListClientRequest) (ListClientResponse, error)
	Get(ctx context.Context, id string) (*Client, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("client_not_found")
)
