package auth

import "context"

type identityKey struct{}

// SetIdentity returns a copy of ctx carrying id. A nil id returns ctx
// unchanged, so requests on public routes never carry an identity.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity the request was admitted as, or
// nil on public routes.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
