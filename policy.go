package cloak

import "context"

// AuthorizationPolicy decides if actor may cloak as target.
type AuthorizationPolicy interface {
	CanCloakAs(ctx context.Context, actor, target Principal) bool
}

// PolicyFunc adapts a function to the AuthorizationPolicy interface.
type PolicyFunc func(ctx context.Context, actor, target Principal) bool

// CanCloakAs implements AuthorizationPolicy.
func (f PolicyFunc) CanCloakAs(ctx context.Context, actor, target Principal) bool {
	if f == nil {
		return false
	}
	return f(ctx, actor, target)
}

// DefaultPolicy applies CanCloakAs.
type DefaultPolicy struct{}

// CanCloakAs implements AuthorizationPolicy.
func (DefaultPolicy) CanCloakAs(ctx context.Context, actor, target Principal) bool {
	return CanCloakAs(ctx, actor, target)
}

// CanCloakAs evaluates the ordered rules, first applicable wins:
//  1. a defined capability on actor is authoritative, a failing
//     capability denies;
//  2. a present admin flag on actor is used as is;
//  3. deny.
func CanCloakAs(ctx context.Context, actor, target Principal) bool {
	if actor == nil || target == nil {
		return false
	}

	if capability := actor.CloakCapability(); capability.Defined() {
		allowed, err := capability.Check(ctx, target)
		if err != nil {
			return false
		}
		return allowed
	}

	if isAdmin, ok := actor.AdminFlag().Get(); ok {
		return isAdmin
	}

	return false
}

func normalizePolicy(p AuthorizationPolicy) AuthorizationPolicy {
	if p == nil {
		return DefaultPolicy{}
	}
	return p
}
