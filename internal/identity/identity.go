// Package identity verifies bearer tokens issued by the identity provider
// and maps them to a user id.
package identity

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
	ErrNotEnabled   = errors.New("identity_not_enabled")
)

// Identity is the verified caller.
type Identity struct {
	UID   string
	Email string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" unless the value has the Bearer scheme.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
