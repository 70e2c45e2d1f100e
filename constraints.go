package clubauthz

import "strings"

// Constraints is the effective rule set for one ticket type.
type Constraints struct {
	RequiresMembership       bool       `json:"requires_membership" yaml:"requires_membership"`
	AllowedMemberStatuses    []TierCode `json:"allowed_member_statuses,omitempty" yaml:"allowed_member_statuses,omitempty"`
	RequiresSponsorCommittee bool       `json:"requires_sponsor_committee" yaml:"requires_sponsor_committee"`
	RequiresWorkingCommittee bool       `json:"requires_working_committee" yaml:"requires_working_committee"`
}

// ConstraintOverrides are values stored on a ticket type. Nil fields are
// unset and fall back to the code defaults; a non-nil empty
// AllowedMemberStatuses explicitly clears the restriction.
type ConstraintOverrides struct {
	RequiresMembership       *bool      `json:"requires_membership,omitempty" yaml:"requires_membership,omitempty"`
	AllowedMemberStatuses    []TierCode `json:"allowed_member_statuses,omitempty" yaml:"allowed_member_statuses,omitempty"`
	RequiresSponsorCommittee *bool      `json:"requires_sponsor_committee,omitempty" yaml:"requires_sponsor_committee,omitempty"`
	RequiresWorkingCommittee *bool      `json:"requires_working_committee,omitempty" yaml:"requires_working_committee,omitempty"`
}

// Merge returns defaults with every set field of o applied on top.
func (o *ConstraintOverrides) Merge(defaults Constraints) Constraints {
	out := defaults
	out.AllowedMemberStatuses = append([]TierCode(nil), defaults.AllowedMemberStatuses...)
	if o == nil {
		return out
	}
	if o.RequiresMembership != nil {
		out.RequiresMembership = *o.RequiresMembership
	}
	if o.AllowedMemberStatuses != nil {
		out.AllowedMemberStatuses = append([]TierCode{}, o.AllowedMemberStatuses...)
	}
	if o.RequiresSponsorCommittee != nil {
		out.RequiresSponsorCommittee = *o.RequiresSponsorCommittee
	}
	if o.RequiresWorkingCommittee != nil {
		out.RequiresWorkingCommittee = *o.RequiresWorkingCommittee
	}
	return out
}

// allows reports whether status is in the allow-list
func (c Constraints) allows(status TierCode) bool {
	s := ParseTierCode(string(status))
	for _, a := range c.AllowedMemberStatuses {
		if ParseTierCode(string(a)) == s {
			return true
		}
	}
	return false
}

// NewcomerOnly is true when the allow-list admits NEWCOMER but not EXTENDED.
func (c Constraints) NewcomerOnly() bool {
	return c.allows(TierNewcomer) && !c.allows(TierExtended)
}

// ConstraintProvider supplies the default constraints of a ticket-type code.
type ConstraintProvider interface {
	DefaultsFor(code string) Constraints
}

// ConstraintDefaults is a table of per-code defaults with a fallback for
// unknown codes. Codes are matched case-insensitively.
type ConstraintDefaults struct {
	ByCode   map[string]Constraints `json:"by_code" yaml:"by_code"`
	Fallback Constraints            `json:"fallback" yaml:"fallback"`
}

func (d ConstraintDefaults) DefaultsFor(code string) Constraints {
	if c, ok := d.ByCode[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return c
	}
	return d.Fallback
}

// DefaultConstraints returns the built-in defaults. Unknown codes require
// membership.
func DefaultConstraints() ConstraintDefaults {
	return ConstraintDefaults{
		ByCode: map[string]Constraints{
			"MEMBER":   {RequiresMembership: true},
			"GUEST":    {},
			"PUBLIC":   {},
			"NEWCOMER": {RequiresMembership: true, AllowedMemberStatuses: []TierCode{TierNewcomer}},
			"SPONSOR_COMMITTEE": {
				RequiresMembership:       true,
				RequiresSponsorCommittee: true,
			},
			"WORKING_COMMITTEE": {
				RequiresMembership:       true,
				RequiresWorkingCommittee: true,
			},
			"EXTENDED": {
				RequiresMembership:    true,
				AllowedMemberStatuses: []TierCode{TierExtended, TierThirdYearPlus},
			},
		},
		Fallback: Constraints{RequiresMembership: true},
	}
}
