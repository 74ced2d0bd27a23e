package shared

import "context"

// Identity is the validated (org, store, actor) triple supplied by the
// upstream tenant layer. The core never re-derives tenant scope; it trusts
// these ids and records the actor for audit.
type Identity struct {
	OrgID   int64
	StoreID int64
	ActorID int64
}

type identityContextKey struct{}

// ContextWithIdentity stores the request identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the request identity, if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
