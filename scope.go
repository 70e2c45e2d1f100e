package clubauthz

import (
	"fmt"
	"time"
)

// ObjectType names the kind of object a scoped role can be held on
type ObjectType string

const (
	ObjectActivityGroup ObjectType = "activity_group"
	ObjectEvent         ObjectType = "event"
	ObjectCommittee     ObjectType = "committee"
)

// visibilityCapabilities maps each object type to the broad read capability
// used by the view path.
var visibilityCapabilities = map[ObjectType]Capability{
	ObjectActivityGroup: CapGroupsView,
	ObjectEvent:         CapEventsView,
	ObjectCommittee:     CapCommitteesView,
}

// ObjectRef identifies a single object instance
type ObjectRef struct {
	Type ObjectType `json:"type"`
	ID   string     `json:"id"`
}

func (r ObjectRef) String() string { return string(r.Type) + ":" + r.ID }

// Valid reports whether the object type is one the engine knows.
func (r ObjectRef) Valid() bool {
	_, ok := visibilityCapabilities[r.Type]
	return ok && r.ID != ""
}

// mustValidRef panics on a malformed reference: that is a caller bug, not a
// business outcome.
func mustValidRef(r ObjectRef) {
	if !r.Valid() {
		panic(fmt.Sprintf("clubauthz: malformed object reference %q", r.String()))
	}
}

// ScopedRoleName is a role held on one object, e.g. COORDINATOR of a group
type ScopedRoleName string

const (
	ScopedCoordinator ScopedRoleName = "COORDINATOR"
	ScopedOwner       ScopedRoleName = "OWNER"
	ScopedChair       ScopedRoleName = "CHAIR"
	ScopedMember      ScopedRoleName = "MEMBER"
)

// ScopedRole records that SubjectID holds Role on Object. It is active while
// LeftAt is nil.
type ScopedRole struct {
	SubjectID string         `json:"subject_id"`
	Object    ObjectRef      `json:"object"`
	Role      ScopedRoleName `json:"role"`
	JoinedAt  time.Time      `json:"joined_at"`
	LeftAt    *time.Time     `json:"left_at,omitempty"`
}

// Active reports whether the holder has not left
func (s ScopedRole) Active() bool { return s.LeftAt == nil }

// ScopedObject is the collaborator's snapshot of the object being checked.
type ScopedObject struct {
	Ref      ObjectRef `json:"ref"`
	Public   bool      `json:"public"`
	Approved bool      `json:"approved"`
}

// HoldsActiveRole reports whether subjectID holds an active role on ref.
// An empty role matches any scoped role.
func HoldsActiveRole(holdings []ScopedRole, subjectID string, ref ObjectRef, role ScopedRoleName) bool {
	for _, h := range holdings {
		if h.SubjectID != subjectID || h.Object != ref || !h.Active() {
			continue
		}
		if role == "" || h.Role == role {
			return true
		}
	}
	return false
}

// ScopeEvaluator decides object-scoped manage and view actions
type ScopeEvaluator struct {
	guard *ImpersonationGuard
}

func NewScopeEvaluator(guard *ImpersonationGuard) *ScopeEvaluator {
	if guard == nil {
		guard = defaultGuard
	}
	return &ScopeEvaluator{guard: guard}
}

// CanManage applies, in order: guarded admin:full, active required scoped
// role, deny. A nil obj means the object was not found and is denied.
func (s *ScopeEvaluator) CanManage(ctx AuthContext, obj *ScopedObject, holdings []ScopedRole, required ScopedRoleName) Verdict {
	if obj == nil {
		return deny(ReasonObjectNotFound, "", "object not found")
	}
	mustValidRef(obj.Ref)
	ref := obj.Ref
	v := s.manage(ctx, ref, holdings, required)
	v.Object = &ref
	v.Impersonating = ctx.IsImpersonating
	return v
}

func (s *ScopeEvaluator) manage(ctx AuthContext, ref ObjectRef, holdings []ScopedRole, required ScopedRoleName) Verdict {
	if ctx.ActorID == "" {
		return deny(ReasonNotAuthenticated, "", "no actor")
	}
	if s.guard.hasAdminFull(ctx) {
		return allow(ReasonAdminFull, CapAdminFull)
	}
	if HoldsActiveRole(holdings, ctx.ActorID, ref, required) {
		return Verdict{Allowed: true, Reason: ReasonScopedRoleGranted, Detail: string(required)}
	}
	return deny(ReasonScopedRoleMissing, "", fmt.Sprintf("requires active %s on %s", required, ref))
}

// CanView is the read path. Public approved objects are visible to anyone
// holding the object type's view capability; otherwise any active scoped
// role on the object grants visibility.
func (s *ScopeEvaluator) CanView(ctx AuthContext, obj *ScopedObject, holdings []ScopedRole) Verdict {
	if obj == nil {
		return deny(ReasonObjectNotFound, "", "object not found")
	}
	mustValidRef(obj.Ref)
	ref := obj.Ref
	v := s.view(ctx, obj, holdings)
	v.Object = &ref
	v.Impersonating = ctx.IsImpersonating
	return v
}

func (s *ScopeEvaluator) view(ctx AuthContext, obj *ScopedObject, holdings []ScopedRole) Verdict {
	if ctx.ActorID == "" {
		return deny(ReasonNotAuthenticated, "", "no actor")
	}
	if s.guard.hasAdminFull(ctx) {
		return allow(ReasonAdminFull, CapAdminFull)
	}
	viewCap := visibilityCapabilities[obj.Ref.Type]
	if obj.Public && obj.Approved {
		if v := s.guard.Check(ctx, viewCap); v.Allowed {
			return allow(ReasonVisibilityGranted, viewCap)
		}
	}
	if HoldsActiveRole(holdings, ctx.ActorID, obj.Ref, "") {
		return Verdict{Allowed: true, Reason: ReasonScopedRoleGranted}
	}
	return deny(ReasonScopedRoleMissing, viewCap, fmt.Sprintf("%s is not visible", obj.Ref))
}
