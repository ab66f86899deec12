// Package identity resolves who is calling the API from a bearer token.
package identity

import (
	"context"
	"strings"
)

type ActorKind string

const (
	ActorUser   ActorKind = "USER"
	ActorWorker ActorKind = "WORKER"
)

// Actor is the authenticated caller.
type Actor struct {
	Kind           ActorKind
	UserID         string
	OrganizationID string
	Roles          []string
}

// Worker is the actor used by scheduled jobs.
func Worker() Actor {
	return Actor{Kind: ActorWorker}
}

func (a Actor) IsWorker() bool {
	return a.Kind == ActorWorker
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
