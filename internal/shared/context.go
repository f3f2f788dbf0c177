package shared

import "context"

type actorContextKey struct{}

// Actor identifies the authenticated user on whose behalf a request runs.
// Identity is established by the platform gateway; this service only
// authorizes.
type Actor struct {
	UserID string
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.UserID != ""
}

type authorityContextKey struct{}

// Authority is the actor's resolved standing in the target tenant. The access
// guard stores it after a successful permission check so downstream services
// can apply level ceilings without resolving again.
type Authority struct {
	UserID string
	Level  int
}

// ContextWithAuthority stores the resolved authority in context.
func ContextWithAuthority(ctx context.Context, authority Authority) context.Context {
	return context.WithValue(ctx, authorityContextKey{}, authority)
}

// AuthorityFromContext extracts the resolved authority from context.
func AuthorityFromContext(ctx context.Context) (Authority, bool) {
	authority, ok := ctx.Value(authorityContextKey{}).(Authority)
	return authority, ok && authority.UserID != ""
}
