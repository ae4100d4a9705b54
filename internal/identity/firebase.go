package identity

import (
	"context"
	"fmt"
	"strings"

	fbapp "github.com/smallbiznis/portal/internal/providers/firebase"
)

// FirebaseVerifier checks Firebase ID tokens with the Admin SDK.
type FirebaseVerifier struct {
	app *fbapp.App
}

func NewFirebaseVerifier(app *fbapp.App) *FirebaseVerifier {
	return &FirebaseVerifier{app: app}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	app, err := v.app.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}

	decoded, err := client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := &Identity{UID: decoded.UID}
	if email, ok := decoded.Claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}
