package domain

import (
	"context"

	"github.com/smallbiznis/portal/pkg/db/pagination"
)

type Repository interface {
	InsertClient(ctx context.Context, client *Client) error
	// FindClient returns (nil, nil) when the client does not exist.
	FindClient(ctx context.Context, tenantID, id string) (*Client, error)
	// ListClients returns up to page.Limit()+1 rows so callers can detect more.
	ListClients(ctx context.Context, tenantID string, filter ListClientFilter, page pagination.Pagination) ([]*Client, error)
}
