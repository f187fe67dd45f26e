package service

import "context"

type contextKey string

const actorKey contextKey = "actor"

// Actor is the identity behind a local API call.
type Actor struct {
	UserID string
	Name   string
	Role   string
}

// WithActor injects the actor into the context
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) *Actor {
	val, ok := ctx.Value(actorKey).(*Actor)
	if !ok {
		return nil
	}
	return val
}

// ActorName returns the actor's name, or "system" for background work.
func ActorName(ctx context.Context) string {
	a := ActorFrom(ctx)
	if a == nil {
		return "system"
	}
	return a.Name
}
