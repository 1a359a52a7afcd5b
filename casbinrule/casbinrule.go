// Package casbinrule expresses fine grained cloak rules as Casbin
// policies, for example letting a department lead cloak only as members
// of their department.
package casbinrule

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	cloak "github.com/goliatone/go-cloak"
	"github.com/goliatone/go-cloak/repository"
)

// ActionCloak is the policy action checked for cloak requests.
const ActionCloak = "cloak"

// ModelText is an RBAC model where both actors and targets can be
// grouped. Policies read "p, <actor or group>, <target or group>, cloak";
// "g" places actors in groups and "g2" places targets in groups.
const ModelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _
g2 = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && g2(r.obj, p.obj) && r.act == p.act
`

// NewEnforcer returns an enforcer using ModelText and no adapter.
// Policies are added with AddPolicy, AddGroupingPolicy and
// AddNamedGroupingPolicy("g2", ...).
func NewEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(ModelText)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	return enforcer, nil
}

// Subject is the casbin subject for a principal.
func Subject(p cloak.Principal) string {
	return "user:" + p.PrincipalID()
}

// Capability returns a cloak capability for actor backed by enforcer.
// Enforcer errors deny.
func Capability(enforcer casbin.IEnforcer, actor cloak.Principal) cloak.Capability {
	return cloak.HasCapability(func(_ context.Context, target cloak.Principal) (bool, error) {
		if target == nil {
			return false, nil
		}
		return enforcer.Enforce(Subject(actor), Subject(target), ActionCloak)
	})
}

// Provider attaches enforcer backed capabilities to repository users.
func Provider(enforcer casbin.IEnforcer) repository.CapabilityProvider {
	return func(u *repository.User) cloak.Capability {
		return Capability(enforcer, u)
	}
}
