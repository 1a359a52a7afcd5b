package cloak

import (
	"context"

	"github.com/goliatone/go-router"
)

var principalCtxKey = &contextKey{"principal"}
var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// Identity is the outcome of the overlay for one request.
type Identity struct {
	// Real is the principal that actually authenticated.
	Real Principal
	// Effective is the principal used for authorization and display.
	Effective Principal
	// Cloaked is true when Effective differs from Real.
	Cloaked bool
}

// WithPrincipal sets the authenticated principal in the given context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext returns the authenticated principal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(Principal)
	return p, ok && p != nil
}

// WithIdentity sets the overlay result in the given context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, id)
}

// IdentityFromContext returns the overlay result.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey).(Identity)
	return id, ok
}

// EffectivePrincipal returns the principal requests should act as. It
// falls back to the authenticated principal when no overlay ran.
func EffectivePrincipal(ctx context.Context) (Principal, bool) {
	if id, ok := IdentityFromContext(ctx); ok && id.Effective != nil {
		return id.Effective, true
	}
	return PrincipalFromContext(ctx)
}

// IsCloaked reports whether the request runs under a cloak.
func IsCloaked(ctx context.Context) bool {
	id, ok := IdentityFromContext(ctx)
	return ok && id.Cloaked
}

// PrincipalFromRouterContext returns the principal placed in the request
// locals by the Authenticate middleware.
func PrincipalFromRouterContext(ctx router.Context) (Principal, bool) {
	p, ok := ctx.Locals(LocalsPrincipalKey).(Principal)
	return p, ok && p != nil
}

// IdentityFromRouterContext returns the overlay result stored in the
// request locals.
func IdentityFromRouterContext(ctx router.Context) (Identity, bool) {
	id, ok := ctx.Locals(LocalsIdentityKey).(Identity)
	return id, ok
}
