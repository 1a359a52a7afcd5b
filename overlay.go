package cloak

import (
	"context"

	"github.com/goliatone/go-router"
)

// IdentityOverlay substitutes the effective principal of a request when
// the session carries an authorized cloak.
type IdentityOverlay struct {
	directory UserDirectory
	policy    AuthorizationPolicy
	logger    Logger
}

// NewIdentityOverlay returns an overlay resolving cloak targets in dir.
func NewIdentityOverlay(dir UserDirectory, policy AuthorizationPolicy) *IdentityOverlay {
	return &IdentityOverlay{
		directory: dir,
		policy:    normalizePolicy(policy),
		logger:    defLogger{},
	}
}

func (o *IdentityOverlay) WithLogger(logger Logger) *IdentityOverlay {
	o.logger = normalizeLogger(logger)
	return o
}

// Apply computes the request identity. A dangling or no longer
// authorized cloak silently yields the real principal. The policy is
// evaluated on every call so revoking the actor ends the cloak on the
// next request.
func (o *IdentityOverlay) Apply(ctx context.Context, state CloakState, actor Principal) Identity {
	plain := Identity{Real: actor, Effective: actor}

	if actor == nil || !state.Active() {
		return plain
	}

	target, err := o.directory.GetByPrimaryKey(ctx, state.CloakedUserID)
	if err != nil || target == nil {
		if err != nil && !IsError(err, ErrUserNotFound) {
			o.logger.Warn("cloak overlay target lookup failed", "target", state.CloakedUserID, "error", err)
		} else {
			o.logger.Debug("cloak overlay target vanished", "target", state.CloakedUserID)
		}
		return plain
	}

	if !o.policy.CanCloakAs(ctx, actor, target) {
		o.logger.Debug("cloak overlay no longer authorized", "actor", actor.PrincipalID(), "target", target.PrincipalID())
		return plain
	}

	return Identity{Real: actor, Effective: target, Cloaked: true}
}

// Middleware runs Apply for each request with an authenticated principal
// and stores the result in the request context and locals. Requests
// without a principal or session pass through untouched.
func (o *IdentityOverlay) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			actor, ok := PrincipalFromRouterContext(ctx)
			if !ok {
				return next(ctx)
			}

			sess, ok := SessionFromRouterContext(ctx)
			if !ok {
				o.logger.Error("cloak overlay found no session")
				return next(ctx)
			}

			identity := o.Apply(ctx.Context(), LoadState(sess), actor)

			ctx.SetContext(WithIdentity(ctx.Context(), identity))
			ctx.Locals(LocalsIdentityKey, identity)

			return next(ctx)
		}
	}
}
