package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "echochat"

// Claims is the payload inside every token. The middleware and the realtime
// gateway read it back to learn who is calling without touching the database.
//
// Why carry TenantID in the token?
//   - Every query is scoped by tenant. Having it in the signed claims means
//     a request can never pick its tenant, and no lookup is needed per call.
//
// Why embed jwt.RegisteredClaims?
//   - ExpiresAt, IssuedAt, Issuer and Subject are the standard fields, and
//     jwt.ParseWithClaims checks expiry and issuer on them for us.
//   - Our own fields sit next to them in the same flat JSON object.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Email    string    `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken creates an HS256-signed token for a user that expires after ttl.
//
// Why HS256?
//   - One process both issues and verifies tokens, so a shared secret is
//     enough and cheaper to verify than RSA or ECDSA.
//   - If verification ever moves to services that must not issue tokens,
//     switching to RS256 only touches this file and ParseToken.
func GenerateToken(userID, tenantID uuid.UUID, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken verifies signature, expiry, issuer and signing method, then
// returns the claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Only HMAC; rejects "none" and key-confusion attempts.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
