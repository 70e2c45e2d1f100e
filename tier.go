package clubauthz

import "strings"

// TierCode is a membership tier. Tiers are ordered by TierPriority, not by
// declaration order.
type TierCode string

const (
	TierProspect      TierCode = "PROSPECT"
	TierLapsed        TierCode = "LAPSED"
	TierAlumni        TierCode = "ALUMNI"
	TierNewcomer      TierCode = "NEWCOMER"
	TierFirstYear     TierCode = "FIRST_YEAR"
	TierSecondYear    TierCode = "SECOND_YEAR"
	TierExtended      TierCode = "EXTENDED"
	TierThirdYearPlus TierCode = "THIRD_YEAR_PLUS"
)

// activeTierChain is ordered lowest to highest.
var activeTierChain = []TierCode{TierNewcomer, TierFirstYear, TierSecondYear, TierExtended, TierThirdYearPlus}

var tierPriorities = map[TierCode]int{
	TierProspect:      1,
	TierLapsed:        1,
	TierAlumni:        2,
	TierNewcomer:      10,
	TierFirstYear:     20,
	TierSecondYear:    30,
	TierExtended:      35,
	TierThirdYearPlus: 40,
}

// ParseTierCode normalizes s (trim, upper-case). The result may still be an
// unknown tier; callers check with TierPriority or IsKnownTier.
func ParseTierCode(s string) TierCode {
	return TierCode(strings.ToUpper(strings.TrimSpace(s)))
}

// IsKnownTier reports whether code names a declared tier
func IsKnownTier(code TierCode) bool {
	_, ok := tierPriorities[ParseTierCode(string(code))]
	return ok
}

// TierPriority returns the rank of code. Empty and unknown codes rank 0.
func TierPriority(code TierCode) int {
	return tierPriorities[ParseTierCode(string(code))]
}

// HasTier reports whether actual ranks at or above required. An unknown
// actual tier satisfies nothing, not even another unknown tier.
func HasTier(actual, required TierCode) bool {
	a, r := TierPriority(actual), TierPriority(required)
	if a == 0 {
		return false
	}
	return a >= r
}

// IsActiveMemberTier is true only for NEWCOMER through THIRD_YEAR_PLUS.
func IsActiveMemberTier(code TierCode) bool {
	c := ParseTierCode(string(code))
	for _, t := range activeTierChain {
		if t == c {
			return true
		}
	}
	return false
}

// ActiveMemberTiers returns the active-member chain, lowest first.
func ActiveMemberTiers() []TierCode {
	out := make([]TierCode, len(activeTierChain))
	copy(out, activeTierChain)
	return out
}
