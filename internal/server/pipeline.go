package server

import (
	"context"

	"github.com/wolfeidau/deskbook/internal/auth"
)

// guarded is a mutating request as an ordered list of stages. The caller has
// already been authenticated; load hydrates the resource whose contacts may
// perform the action, authorization runs against it and only then mutate
// touches the store. A failing stage stops the pipeline.
type guarded[R auth.Resource, T any] struct {
	action auth.Action
	load   func(ctx context.Context) (R, error)
	mutate func(ctx context.Context, target R) (T, error)
}

func (g guarded[R, T]) run(ctx context.Context) (T, error) {
	var zero T

	if auth.IdentityFromContext(ctx) == nil {
		return zero, auth.ErrUnauthenticated
	}

	target, err := g.load(ctx)
	if err != nil {
		return zero, err
	}

	if err := auth.RequireContact(ctx, target, g.action); err != nil {
		return zero, err
	}

	return g.mutate(ctx, target)
}
