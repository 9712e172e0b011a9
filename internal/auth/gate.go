package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/deskbook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrForbidden is returned when a verified identity lacks rights on a resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when a request carries no verified identity.
	ErrUnauthenticated = errors.New("not authenticated")
)

// Action is a mutation guarded by the gate.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource is anything carrying a contact list of usernames allowed to mutate it.
type Resource interface {
	DocumentID() string
	ResourceKind() string
	ContactList() []string
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns nil for an allowed decision, otherwise an error wrapping ErrForbidden.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

// Authorize allows a mutation iff the resource's contact list contains the
// identity's username.
func Authorize(id *Identity, res Resource, action Action) Decision {
	if id == nil || id.Username == "" {
		return Decision{Reason: "no username in identity"}
	}
	if res == nil {
		return Decision{Reason: fmt.Sprintf("no resource to %s", action)}
	}
	if !slices.Contains(res.ContactList(), id.Username) {
		return Decision{Reason: fmt.Sprintf("%s is not a contact of %s %s", id.Username, res.ResourceKind(), res.DocumentID())}
	}
	return Decision{Allowed: true}
}

// RequireContact authorizes the identity in ctx against res and records denials.
func RequireContact(ctx context.Context, res Resource, action Action) error {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ErrUnauthenticated
	}

	decision := Authorize(id, res, action)
	if !decision.Allowed {
		telemetry.GetMetrics().AuthDeniedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", "forbidden"),
			attribute.String("action", string(action)),
		))
		log.Ctx(ctx).Debug().
			Str("action", string(action)).
			Str("username", id.Username).
			Str("reason", decision.Reason).
			Msg("permission denied")
	}
	return decision.Err()
}
