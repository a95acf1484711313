// Package auth decides who may run administrative game actions.
package auth

import (
	"context"
	"strings"
)

// Policy authorizes admin actions. scopeID is empty for global actions
// such as a manual rollover.
type Policy interface {
	CanAdminister(ctx context.Context, actorID, scopeID string) bool
}

// AllowList grants admin rights to a fixed set of actors in every scope.
// An empty list grants nothing.
type AllowList struct {
	ids map[string]struct{}
}

// NewAllowList builds a policy from actor ids
func NewAllowList(ids []string) *AllowList {
	a := &AllowList{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			a.ids[id] = struct{}{}
		}
	}
	return a
}

// CanAdminister implements Policy
func (a *AllowList) CanAdminister(_ context.Context, actorID, _ string) bool {
	if actorID == "" {
		return false
	}
	_, ok := a.ids[actorID]
	return ok
}

type actorKey struct{}

// WithActor stores the calling actor's id on the context
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the calling actor's id, or "" when unknown
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
