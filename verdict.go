package clubauthz

// DecisionReason explains a Verdict for general (non-ticket) actions.
// The set is closed; new values may be appended but never repurposed.
type DecisionReason string

const (
	ReasonCapabilityGranted    DecisionReason = "CAPABILITY_GRANTED"
	ReasonAdminFull            DecisionReason = "ADMIN_FULL"
	ReasonScopedRoleGranted    DecisionReason = "SCOPED_ROLE_GRANTED"
	ReasonVisibilityGranted    DecisionReason = "VISIBILITY_GRANTED"
	ReasonNotAuthenticated     DecisionReason = "NOT_AUTHENTICATED"
	ReasonCapabilityMissing    DecisionReason = "CAPABILITY_MISSING"
	ReasonImpersonationBlocked DecisionReason = "IMPERSONATION_BLOCKED"
	ReasonScopedRoleMissing    DecisionReason = "SCOPED_ROLE_MISSING"
	ReasonObjectNotFound       DecisionReason = "OBJECT_NOT_FOUND"
)

// Outcome classifies a verdict so transports can pick a status code.
type Outcome string

const (
	OutcomeAllowed         Outcome = "allowed"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeNotFound        Outcome = "not_found"
)

// Verdict is the result of a capability or scoped check
type Verdict struct {
	Allowed       bool           `json:"allowed"`
	Reason        DecisionReason `json:"reason"`
	Capability    Capability     `json:"capability,omitempty"`
	Object        *ObjectRef     `json:"object,omitempty"`
	Impersonating bool           `json:"impersonating"`
	Detail        string         `json:"detail,omitempty"`
}

// Outcome maps the verdict reason onto a transport-neutral class.
func (v Verdict) Outcome() Outcome {
	if v.Allowed {
		return OutcomeAllowed
	}
	switch v.Reason {
	case ReasonNotAuthenticated:
		return OutcomeUnauthenticated
	case ReasonObjectNotFound:
		return OutcomeNotFound
	default:
		return OutcomeForbidden
	}
}

func allow(reason DecisionReason, c Capability) Verdict {
	return Verdict{Allowed: true, Reason: reason, Capability: c}
}

func deny(reason DecisionReason, c Capability, detail string) Verdict {
	return Verdict{Allowed: false, Reason: reason, Capability: c, Detail: detail}
}
