package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether actor may perform action on object inside
	// tenantID. actor is "system" or "user:<uid>".
	Authorize(ctx context.Context, actor string, tenantID string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

func UserActor(uid string) string {
	return "user:" + uid
}
