package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/deskbook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Refresher asks a key source for an out of band refresh.
type Refresher interface {
	RequestRefresh()
}

// ErrorHandler writes the response for a request that failed authentication.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Authenticator verifies bearer tokens on incoming requests.
type Authenticator struct {
	verifier  *TokenVerifier
	refresher Refresher
	onError   ErrorHandler
}

// NewAuthenticator creates an authenticator. refresher may be nil; when set it
// is asked to refresh whenever a token names an unknown key, so rotated keys
// are picked up before the next scheduled refresh.
func NewAuthenticator(verifier *TokenVerifier, refresher Refresher, onError ErrorHandler) *Authenticator {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	return &Authenticator{
		verifier:  verifier,
		refresher: refresher,
		onError:   onError,
	}
}

// Authenticate verifies the request's bearer token and returns a context
// carrying the identity.
func (a *Authenticator) Authenticate(r *http.Request) (context.Context, error) {
	ctx := r.Context()

	id, err := a.verifier.Verify(extractBearerToken(r))
	if err != nil {
		if errors.Is(err, ErrUnknownKey) && a.refresher != nil {
			a.refresher.RequestRefresh()
		}
		telemetry.GetMetrics().AuthDeniedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", ErrorKind(err)),
		))
		return ctx, err
	}

	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("username", id.Username)
	})
	return WithIdentity(ctx, id), nil
}

// Middleware returns an HTTP middleware that rejects requests without a
// valid bearer token.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := a.Authenticate(r)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to verify bearer token")
				a.onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrorKind returns the machine readable kind of an authentication or
// authorization error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "auth_malformed"
	case errors.Is(err, ErrUnknownKey):
		return "auth_unknown_key"
	case errors.Is(err, ErrExpired):
		return "auth_expired"
	case errors.Is(err, ErrBadSignature):
		return "auth_bad_signature"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "unknown"
	}
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
