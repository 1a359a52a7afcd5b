package cloak

import "context"

// Principal is a user account as seen by the cloak core. Principals are
// owned by a UserDirectory; this package only reads and compares them.
type Principal interface {
	PrincipalID() string
	// CloakCapability returns the fine grained cloak rule attached to the
	// principal, or NoCapability.
	CloakCapability() Capability
	// AdminFlag returns the default authorization flag, or FlagAbsent.
	AdminFlag() Flag
}

// CapabilityFunc decides if the owning principal may cloak as target.
type CapabilityFunc func(ctx context.Context, target Principal) (bool, error)

// Capability is either NoCapability (the zero value) or a rule created
// with HasCapability.
type Capability struct {
	check CapabilityFunc
}

// NoCapability marks a principal without a custom cloak rule.
var NoCapability = Capability{}

// HasCapability wraps fn as a defined capability. A nil fn yields
// NoCapability.
func HasCapability(fn CapabilityFunc) Capability {
	return Capability{check: fn}
}

// Defined reports whether the capability carries a rule.
func (c Capability) Defined() bool {
	return c.check != nil
}

// Check evaluates the rule. Calling Check on NoCapability returns false.
func (c Capability) Check(ctx context.Context, target Principal) (bool, error) {
	if c.check == nil {
		return false, nil
	}
	return c.check(ctx, target)
}

// Flag is a boolean attribute that may be absent.
type Flag struct {
	value   bool
	present bool
}

// FlagAbsent marks an attribute the principal does not carry.
var FlagAbsent = Flag{}

// FlagOf returns a present flag holding v.
func FlagOf(v bool) Flag {
	return Flag{value: v, present: true}
}

// Get returns the value and whether it is present.
func (f Flag) Get() (value bool, ok bool) {
	return f.value, f.present
}

// WithCapability decorates p so that CloakCapability returns c.
func WithCapability(p Principal, c Capability) Principal {
	if p == nil {
		return nil
	}
	return capablePrincipal{Principal: p, capability: c}
}

type capablePrincipal struct {
	Principal
	capability Capability
}

func (p capablePrincipal) CloakCapability() Capability {
	return p.capability
}

// SamePrincipal compares principals by identifier.
func SamePrincipal(a, b Principal) bool {
	if a == nil || b == nil {
		return false
	}
	return a.PrincipalID() == b.PrincipalID()
}
