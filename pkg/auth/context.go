// Package auth authenticates inbound requests and carries the resulting
// actor identity through the request context. The pipeline trusts this
// identity as given; entitlement checks live in the executor's permission
// matrix.
package auth

import (
	"context"
	"errors"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

type contextKey string

const actorKey contextKey = "actor"

// ErrNoActor means the request context carries no authenticated actor.
var ErrNoActor = errors.New("no actor in context")

// WithActor attaches an actor to the context.
func WithActor(ctx context.Context, a contracts.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom retrieves the authenticated actor from the context.
func ActorFrom(ctx context.Context) (contracts.Actor, error) {
	a, ok := ctx.Value(actorKey).(contracts.Actor)
	if !ok {
		return contracts.Actor{}, ErrNoActor
	}
	return a, nil
}
