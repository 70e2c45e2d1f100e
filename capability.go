package clubauthz

import "sort"

// ============================================================================
// ROLES & CAPABILITIES
// ============================================================================

// Role is a global role assigned to a member outside of the engine
type Role string

const (
	RoleAdmin        Role = "admin"
	RolePresident    Role = "president"
	RoleVPActivities Role = "vp-activities"
	RoleVPMembership Role = "vp-membership"
	RoleTreasurer    Role = "treasurer"
	RoleSecretary    Role = "secretary"
	RoleWebmaster    Role = "webmaster"
	RoleEventChair   Role = "event-chair"
	RoleMember       Role = "member"
)

// Capability names a permitted action class, e.g. "comms:send"
type Capability string

const (
	CapAdminFull           Capability = "admin:full"
	CapAdminImpersonate    Capability = "admin:impersonate"
	CapUsersView           Capability = "users:view"
	CapUsersManage         Capability = "users:manage"
	CapRolesAssign         Capability = "roles:assign"
	CapMembersView         Capability = "members:view"
	CapMembersDelete       Capability = "members:delete"
	CapEventsView          Capability = "events:view"
	CapEventsManage        Capability = "events:manage"
	CapEventsDelete        Capability = "events:delete"
	CapRegistrationsView   Capability = "registrations:view"
	CapRegistrationsManage Capability = "registrations:manage"
	CapTicketsOverride     Capability = "tickets:override"
	CapGroupsView          Capability = "groups:view"
	CapGroupsManage        Capability = "groups:manage"
	CapGroupsApprove       Capability = "groups:approve"
	CapCommitteesView      Capability = "committees:view"
	CapCommsView           Capability = "comms:view"
	CapCommsSend           Capability = "comms:send"
	CapFinanceView         Capability = "finance:view"
	CapFinanceManage       Capability = "finance:manage"
	CapStoreView           Capability = "store:view"
	CapStoreManage         Capability = "store:manage"
	CapExportsRun          Capability = "exports:run"
	CapAuditView           Capability = "audit:view"
)

var knownCapabilities = []Capability{
	CapAdminFull, CapAdminImpersonate,
	CapUsersView, CapUsersManage, CapRolesAssign,
	CapMembersView, CapMembersDelete,
	CapEventsView, CapEventsManage, CapEventsDelete,
	CapRegistrationsView, CapRegistrationsManage, CapTicketsOverride,
	CapGroupsView, CapGroupsManage, CapGroupsApprove, CapCommitteesView,
	CapCommsView, CapCommsSend,
	CapFinanceView, CapFinanceManage,
	CapStoreView, CapStoreManage,
	CapExportsRun, CapAuditView,
}

// KnownCapabilities returns every capability the engine understands.
func KnownCapabilities() []Capability {
	out := make([]Capability, len(knownCapabilities))
	copy(out, knownCapabilities)
	return out
}

// IsKnownCapability reports whether c is part of the known capability set.
func IsKnownCapability(c Capability) bool {
	for _, k := range knownCapabilities {
		if k == c {
			return true
		}
	}
	return false
}

// DefaultGrants is the role -> capability table used when no configuration
// replaces it. Roles never inherit from each other; every grant is explicit
// except for the admin:full implication.
var DefaultGrants = map[Role][]Capability{
	RoleAdmin: {CapAdminFull},
	RolePresident: {
		CapUsersView, CapUsersManage, CapRolesAssign, CapMembersView,
		CapEventsView, CapEventsManage, CapRegistrationsView, CapRegistrationsManage,
		CapTicketsOverride, CapGroupsView, CapGroupsManage, CapGroupsApprove,
		CapCommitteesView, CapCommsView, CapCommsSend, CapFinanceView,
		CapStoreView, CapExportsRun, CapAuditView, CapAdminImpersonate,
	},
	RoleVPActivities: {
		CapMembersView, CapEventsView, CapEventsManage, CapRegistrationsView,
		CapRegistrationsManage, CapTicketsOverride, CapGroupsView, CapGroupsManage,
		CapGroupsApprove, CapCommitteesView, CapCommsView, CapCommsSend,
	},
	RoleVPMembership: {
		CapUsersView, CapMembersView, CapEventsView, CapRegistrationsView,
		CapGroupsView, CapCommitteesView, CapCommsView, CapCommsSend, CapExportsRun,
	},
	RoleTreasurer: {
		CapMembersView, CapEventsView, CapRegistrationsView, CapGroupsView,
		CapCommitteesView, CapFinanceView, CapFinanceManage, CapStoreView,
		CapStoreManage, CapExportsRun,
	},
	RoleSecretary: {
		CapMembersView, CapEventsView, CapGroupsView, CapCommitteesView,
		CapCommsView, CapCommsSend,
	},
	RoleWebmaster: {
		CapUsersView, CapUsersManage, CapMembersView, CapEventsView,
		CapGroupsView, CapCommitteesView, CapAuditView, CapAdminImpersonate,
	},
	RoleEventChair: {
		CapEventsView, CapEventsManage, CapRegistrationsView, CapRegistrationsManage,
		CapGroupsView, CapCommitteesView,
	},
	RoleMember: {CapEventsView, CapGroupsView, CapCommitteesView, CapStoreView},
}

// CapabilitySet is an unordered set of capabilities
type CapabilitySet map[Capability]struct{}

// Has reports whether the set contains c
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the set members in lexical order
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CapabilityTable is an immutable role -> capability mapping. It is built
// once and only read afterwards, so it is safe for concurrent use.
type CapabilityTable struct {
	grants map[Role]CapabilitySet
}

// NewCapabilityTable copies grants into a new immutable table.
func NewCapabilityTable(grants map[Role][]Capability) *CapabilityTable {
	t := &CapabilityTable{grants: make(map[Role]CapabilitySet, len(grants))}
	for role, caps := range grants {
		set := make(CapabilitySet, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		t.grants[role] = set
	}
	return t
}

var defaultCapabilityTable = NewCapabilityTable(DefaultGrants)

// DefaultCapabilityTable returns the process-wide table built from DefaultGrants.
func DefaultCapabilityTable() *CapabilityTable { return defaultCapabilityTable }

// HasCapability reports whether role is granted c, directly or through admin:full.
// Unknown roles have no capabilities.
func (t *CapabilityTable) HasCapability(role Role, c Capability) bool {
	set, ok := t.grants[role]
	if !ok {
		return false
	}
	if set.Has(CapAdminFull) {
		return true
	}
	return set.Has(c)
}

// CapabilitiesFor returns the effective capabilities of role as a fresh set.
// Roles holding admin:full get every known capability.
func (t *CapabilityTable) CapabilitiesFor(role Role) CapabilitySet {
	set, ok := t.grants[role]
	if !ok {
		return CapabilitySet{}
	}
	out := make(CapabilitySet, len(set))
	if set.Has(CapAdminFull) {
		for _, c := range knownCapabilities {
			out[c] = struct{}{}
		}
	}
	for c := range set {
		out[c] = struct{}{}
	}
	return out
}

// Roles lists the roles present in the table
func (t *CapabilityTable) Roles() []Role {
	out := make([]Role, 0, len(t.grants))
	for r := range t.grants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasCapability checks role against the default table.
func HasCapability(role Role, c Capability) bool {
	return defaultCapabilityTable.HasCapability(role, c)
}

// CapabilitiesFor resolves role against the default table.
func CapabilitiesFor(role Role) CapabilitySet {
	return defaultCapabilityTable.CapabilitiesFor(role)
}
