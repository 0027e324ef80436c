package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/apperr"
)

// Identity is the authenticated caller. The zero value is "nobody" and is
// rejected by every authorization check.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
}

func (i Identity) Valid() bool {
	return i.UserID != uuid.Nil && i.TenantID != uuid.Nil
}

// Resolver turns a request credential into an Identity. It fails closed:
// anything it cannot verify is ErrUnauthenticated.
type Resolver struct {
	secret string
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: secret}
}

func (r *Resolver) Resolve(credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: missing credential", apperr.ErrUnauthenticated)
	}

	claims, err := ParseToken(credential, r.secret)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}

	id := Identity{UserID: claims.UserID, TenantID: claims.TenantID, Email: claims.Email}
	if !id.Valid() {
		return Identity{}, fmt.Errorf("%w: token carries no identity", apperr.ErrUnauthenticated)
	}
	return id, nil
}

// CredentialFromRequest extracts the bearer token from the Authorization
// header. Browsers cannot set headers on a websocket handshake, so the
// access_token query parameter is accepted as a fallback.
func CredentialFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", fmt.Errorf("%w: expected Authorization: Bearer <token>", apperr.ErrUnauthenticated)
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("%w: missing authorization header", apperr.ErrUnauthenticated)
}
