package fsstore

import (
	"context"

	"cloud.google.com/go/firestore"
	clientdomain "github.com/smallbiznis/portal/internal/client/domain"
	projectdomain "github.com/smallbiznis/portal/internal/project/domain"
	"github.com/smallbiznis/portal/pkg/db/pagination"
)

func (s *Store) InsertClient(ctx context.Context, client *clientdomain.Client) error {
	_, err := s.tenantCol(client.TenantID, colClients).Doc(client.ID).Create(ctx, toClientDoc(client))
	return err
}

func (s *Store) FindClient(ctx context.Context, tenantID, id string) (*clientdomain.Client, error) {
	var doc clientDoc
	found, err := getDoc(ctx, s.tenantCol(tenantID, colClients).Doc(id), &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.model(tenantID, id), nil
}

func (s *Store) ListClients(ctx context.Context, tenantID string, filter clientdomain.ListClientFilter, page pagination.Pagination) ([]*clientdomain.Client, error) {
	q := s.tenantCol(tenantID, colClients).Query
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	q, err := paginate(q, page)
	if err != nil {
		return nil, err
	}
	return collect(ctx, q, func(snap *firestore.DocumentSnapshot) (*clientdomain.Client, error) {
		var doc clientDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return doc.model(tenantID, snap.Ref.ID), nil
	})
}

func (s *Store) InsertProject(ctx context.Context, project *projectdomain.Project) error {
	_, err := s.tenantCol(project.TenantID, colProjects).Doc(project.ID).Create(ctx, toProjectDoc(project))
	return err
}

func (s *Store) ListProjects(ctx context.Context, tenantID string, filter projectdomain.ListProjectFilter, page pagination.Pagination) ([]*projectdomain.Project, error) {
	q := s.tenantCol(tenantID, colProjects).Query
	if filter.ClientID != "" {
		q = q.Where("clientId", "==", filter.ClientID)
	}
	q, err := paginate(q, page)
	if err != nil {
		return nil, err
	}
	return collect(ctx, q, func(snap *firestore.DocumentSnapshot) (*projectdomain.Project, error) {
		var doc projectDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		return doc.model(tenantID, snap.Ref.ID), nil
	})
}
