package clubauthz

import "testing"

func TestHasTierFailsClosed(t *testing.T) {
	if HasTier("", TierNewcomer) {
		t.Fatalf("empty tier must not satisfy anything")
	}
	if HasTier("GOLD", "GOLD") {
		t.Fatalf("unknown tier must not satisfy itself")
	}
	if HasTier("", "") {
		t.Fatalf("empty tier must not satisfy an empty requirement")
	}
}

func TestHasTierUnknownRequirement(t *testing.T) {
	for _, actual := range []TierCode{TierProspect, TierFirstYear, TierThirdYearPlus} {
		if !HasTier(actual, "") {
			t.Fatalf("%s should satisfy an empty requirement", actual)
		}
		if !HasTier(actual, "GOLD") {
			t.Fatalf("%s should satisfy an unranked requirement", actual)
		}
	}
}

func TestHasTierMonotonic(t *testing.T) {
	all := []TierCode{TierProspect, TierLapsed, TierAlumni, TierNewcomer, TierFirstYear, TierSecondYear, TierExtended, TierThirdYearPlus}
	for _, a := range all {
		for _, b := range all {
			if !HasTier(a, b) {
				continue
			}
			for _, c := range all {
				if TierPriority(c) >= TierPriority(a) && !HasTier(c, b) {
					t.Fatalf("%s satisfies %s but higher %s does not", a, b, c)
				}
			}
		}
	}
}

func TestTierOrdering(t *testing.T) {
	chain := ActiveMemberTiers()
	for i := 1; i < len(chain); i++ {
		if TierPriority(chain[i]) <= TierPriority(chain[i-1]) {
			t.Fatalf("chain not strictly increasing at %s", chain[i])
		}
	}
	if !HasTier(TierExtended, TierSecondYear) || HasTier(TierSecondYear, TierExtended) {
		t.Fatalf("EXTENDED ranks above SECOND_YEAR")
	}
	if !HasTier(TierLapsed, TierProspect) || !HasTier(TierProspect, TierLapsed) {
		t.Fatalf("PROSPECT and LAPSED share a rank")
	}
}

func TestActiveMemberTier(t *testing.T) {
	for _, tier := range ActiveMemberTiers() {
		if !IsActiveMemberTier(tier) {
			t.Fatalf("%s should be active", tier)
		}
	}
	for _, tier := range []TierCode{TierProspect, TierLapsed, TierAlumni, "", "GOLD"} {
		if IsActiveMemberTier(tier) {
			t.Fatalf("%q should not be active", tier)
		}
	}
	if !IsActiveMemberTier(" newcomer ") {
		t.Fatalf("tier codes are normalized")
	}
}
