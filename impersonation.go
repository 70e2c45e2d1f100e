package clubauthz

import (
	"fmt"
	"sort"
)

// AuthContext carries the already-verified identity of the caller for one
// request. Impersonation travels here and nowhere else.
type AuthContext struct {
	ActorID             string       `json:"actor_id"`
	Role                Role         `json:"role"`
	Tier                TierCode     `json:"tier,omitempty"`
	IsImpersonating     bool         `json:"is_impersonating"`
	ImpersonatorID      string       `json:"impersonator_id,omitempty"`
	BlockedCapabilities []Capability `json:"blocked_capabilities,omitempty"`
}

// NewAuthContext builds a non-impersonating context
func NewAuthContext(actorID string, role Role, tier TierCode) AuthContext {
	return AuthContext{ActorID: actorID, Role: role, Tier: tier}
}

// Impersonate returns a copy of c marked as an impersonated session run by
// impersonatorID. extra capabilities are blocked on top of the fixed blocklist.
func (c AuthContext) Impersonate(impersonatorID string, extra ...Capability) AuthContext {
	out := c
	out.IsImpersonating = true
	out.ImpersonatorID = impersonatorID
	out.BlockedCapabilities = append(ImpersonationBlocklist(), extra...)
	return out
}

// fixedImpersonationBlocklist is an append-only contract: entries may be
// added but never removed or renamed.
var fixedImpersonationBlocklist = []Capability{
	CapAdminFull,
	CapAdminImpersonate,
	CapUsersManage,
	CapRolesAssign,
	CapMembersDelete,
	CapEventsDelete,
	CapCommsSend,
	CapFinanceManage,
	CapStoreManage,
	CapTicketsOverride,
}

// ImpersonationBlocklist returns the fixed set of capabilities denied during
// impersonation, sorted.
func ImpersonationBlocklist() []Capability {
	out := make([]Capability, len(fixedImpersonationBlocklist))
	copy(out, fixedImpersonationBlocklist)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ImpersonationGuard wraps a capability table and strips blocked
// capabilities from impersonated sessions.
type ImpersonationGuard struct {
	table   *CapabilityTable
	blocked CapabilitySet
}

// NewImpersonationGuard builds a guard over table. extra entries extend the
// fixed blocklist; they cannot shrink it.
func NewImpersonationGuard(table *CapabilityTable, extra ...Capability) *ImpersonationGuard {
	if table == nil {
		table = defaultCapabilityTable
	}
	g := &ImpersonationGuard{table: table, blocked: make(CapabilitySet, len(fixedImpersonationBlocklist)+len(extra))}
	for _, c := range fixedImpersonationBlocklist {
		g.blocked[c] = struct{}{}
	}
	for _, c := range extra {
		g.blocked[c] = struct{}{}
	}
	return g
}

var defaultGuard = NewImpersonationGuard(defaultCapabilityTable)

// Table returns the capability table consulted by the guard
func (g *ImpersonationGuard) Table() *CapabilityTable { return g.table }

// IsBlocked reports whether c is denied for ctx because of impersonation.
func (g *ImpersonationGuard) IsBlocked(ctx AuthContext, c Capability) bool {
	if !ctx.IsImpersonating {
		return false
	}
	if g.blocked.Has(c) {
		return true
	}
	for _, b := range ctx.BlockedCapabilities {
		if b == c {
			return true
		}
	}
	return false
}

// Check runs the blocklist before the capability table so that admin:full
// can never short-circuit it. Without impersonation the result matches
// HasCapability. Actor presence is checked by the Engine.
func (g *ImpersonationGuard) Check(ctx AuthContext, c Capability) Verdict {
	if g.IsBlocked(ctx, c) {
		v := deny(ReasonImpersonationBlocked, c, fmt.Sprintf("%s is blocked while impersonating", c))
		v.Impersonating = true
		return v
	}
	var v Verdict
	switch {
	case g.hasAdminFull(ctx):
		v = allow(ReasonAdminFull, c)
	case g.table.HasCapability(ctx.Role, c):
		v = allow(ReasonCapabilityGranted, c)
	default:
		v = deny(ReasonCapabilityMissing, c, fmt.Sprintf("role %q lacks %s", ctx.Role, c))
	}
	v.Impersonating = ctx.IsImpersonating
	return v
}

// hasAdminFull is false for every impersonated session because admin:full
// is on the fixed blocklist.
func (g *ImpersonationGuard) hasAdminFull(ctx AuthContext) bool {
	if g.IsBlocked(ctx, CapAdminFull) {
		return false
	}
	set, ok := g.table.grants[ctx.Role]
	return ok && set.Has(CapAdminFull)
}

// GuardedCapabilityCheck checks c for ctx against the default table and blocklist.
func GuardedCapabilityCheck(ctx AuthContext, c Capability) Verdict {
	return defaultGuard.Check(ctx, c)
}
