package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/identity"
	"github.com/mcdev12/trierg/go/internal/models"
)

// accessClaims extends standard JWT claims with the caller's role.
type accessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// JWTAuthenticator verifies bearer tokens and yields caller identities.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

// NewJWTAuthenticator creates an HS256 token verifier.
func NewJWTAuthenticator(secret, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer}
}

// GenerateToken signs an access token for a user, mostly for tooling and
// tests.
func (a *JWTAuthenticator) GenerateToken(userID string, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: string(role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Identify extracts the caller identity from the Authorization header. A
// missing or invalid token yields the anonymous guest identity; guests can
// read everything but mutate nothing.
func (a *JWTAuthenticator) Identify(r *http.Request) identity.Identity {
	header := r.Header.Get("Authorization")
	if header == "" {
		return identity.Anonymous
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		log.Debug().Err(err).Msg("rejected bearer token")
		return identity.Anonymous
	}

	role := models.Role(claims.Role)
	switch role {
	case models.RoleUser, models.RoleAdmin:
	default:
		role = models.RoleGuest
	}
	return identity.Identity{ID: claims.Subject, Role: role}
}
