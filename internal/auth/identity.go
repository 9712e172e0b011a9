package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified claim set of a bearer token.
type Identity struct {
	Subject   string
	Username  string
	Email     string
	Groups    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	AuthTime  time.Time
}

type contextKey int

const (
	identityContextKey contextKey = iota
)

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the authenticated identity from the request context.
// Returns nil if no identity is present (unauthenticated request).
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

func identityFromClaims(claims jwt.MapClaims) (*Identity, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id := &Identity{
		Subject: sub,
		Email:   stringClaim(claims, "email"),
	}

	// username falls back through the claims each token type carries
	for _, name := range []string{"username", "cognito:username", "email"} {
		if s := stringClaim(claims, name); s != "" {
			id.Username = s
			break
		}
	}

	if groups, ok := claims["cognito:groups"].([]any); ok {
		for _, g := range groups {
			if s, ok := g.(string); ok {
				id.Groups = append(id.Groups, s)
			}
		}
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	if authTime, ok := claims["auth_time"].(float64); ok {
		id.AuthTime = time.Unix(int64(authTime), 0)
	}

	return id, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
