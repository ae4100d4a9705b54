package fsstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	tenantdomain "github.com/smallbiznis/portal/internal/tenant/domain"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *Store) InsertTenant(ctx context.Context, tenant *tenantdomain.Tenant) error {
	_, err := s.client.Collection(colTenants).Doc(tenant.ID).Create(ctx, toTenantDoc(tenant))
	if status.Code(err) == codes.AlreadyExists {
		return tenantdomain.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindTenant(ctx context.Context, id string) (*tenantdomain.Tenant, error) {
	var doc tenantDoc
	found, err := getDoc(ctx, s.client.Collection(colTenants).Doc(id), &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.model(id), nil
}

func (s *Store) ListTenantIDs(ctx context.Context) ([]string, error) {
	iter := s.client.Collection(colTenants).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, ref.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *tenantdomain.User) error {
	_, err := s.client.Collection(colUsers).Doc(user.ID).Set(ctx, toUserDoc(user))
	return err
}

func (s *Store) FindUser(ctx context.Context, id string) (*tenantdomain.User, error) {
	var doc userDoc
	found, err := getDoc(ctx, s.client.Collection(colUsers).Doc(id), &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.model(id), nil
}

func (s *Store) FindUserByTenantRole(ctx context.Context, tenantID string, role tenantdomain.Role) (*tenantdomain.User, error) {
	snap, err := firstDoc(ctx, s.client.Collection(colUsers).
		Where("tenantId", "==", tenantID).
		Where("role", "==", string(role)))
	if err != nil || snap == nil {
		return nil, err
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.model(snap.Ref.ID), nil
}

func (s *Store) UpsertMembership(ctx context.Context, membership *tenantdomain.Membership) error {
	_, err := s.client.Collection(colUserTenants).Doc(membership.ID).Set(ctx, toMembershipDoc(membership))
	return err
}

func (s *Store) FindMembership(ctx context.Context, id string) (*tenantdomain.Membership, error) {
	var doc membershipDoc
	found, err := getDoc(ctx, s.client.Collection(colUserTenants).Doc(id), &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.model(id), nil
}

func (s *Store) FirstMembershipForUser(ctx context.Context, userID string) (*tenantdomain.Membership, error) {
	return s.firstMembership(ctx, s.client.Collection(colUserTenants).Where("userId", "==", userID))
}

func (s *Store) FirstMembershipByRole(ctx context.Context, tenantID string, role tenantdomain.Role) (*tenantdomain.Membership, error) {
	return s.firstMembership(ctx, s.client.Collection(colUserTenants).
		Where("tenantId", "==", tenantID).
		Where("role", "==", string(role)))
}

func (s *Store) firstMembership(ctx context.Context, q firestore.Query) (*tenantdomain.Membership, error) {
	snap, err := firstDoc(ctx, q)
	if err != nil || snap == nil {
		return nil, err
	}
	var doc membershipDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.model(snap.Ref.ID), nil
}

func (s *Store) FindSettings(ctx context.Context, tenantID string) (*tenantdomain.Settings, error) {
	var doc emailTestDoc
	found, err := getDoc(ctx, s.tenantCol(tenantID, colSettings).Doc(docEmailTest), &doc)
	if err != nil || !found {
		return nil, err
	}
	return &tenantdomain.Settings{
		TenantID:            tenantID,
		EmailTestLastSentAt: doc.LastSentAt,
		UpdatedAt:           doc.UpdatedAt,
	}, nil
}

func (s *Store) MarkEmailTestSent(ctx context.Context, tenantID string, at time.Time) error {
	_, err := s.tenantCol(tenantID, colSettings).Doc(docEmailTest).Set(ctx, map[string]any{
		"lastSentAt": at,
		"updatedAt":  at,
	}, firestore.MergeAll)
	return err
}
