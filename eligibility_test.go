package clubauthz

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var eventStart = time.Date(2026, 5, 20, 19, 0, 0, 0, time.UTC)

func boolPtr(b bool) *bool { return &b }

// fixture builds a snapshot for member m1 on event e1 with a ticket type per
// default code.
func fixture(status TierCode) *EligibilitySnapshot {
	return &EligibilitySnapshot{
		MemberID: "m1",
		Event:    &Event{ID: "e1", Title: "Spring Dinner", StartTime: eventStart},
		TicketTypes: []TicketType{
			{ID: "tt-member", EventID: "e1", Code: "MEMBER", Name: "Member", SortOrder: 1, Active: true},
			{ID: "tt-guest", EventID: "e1", Code: "GUEST", Name: "Guest", SortOrder: 2, Active: true},
			{ID: "tt-newcomer", EventID: "e1", Code: "NEWCOMER", Name: "Newcomer", SortOrder: 3, Active: true},
			{ID: "tt-sponsor", EventID: "e1", Code: "SPONSOR_COMMITTEE", Name: "Sponsor", SortOrder: 4, Active: true},
			{ID: "tt-working", EventID: "e1", Code: "WORKING_COMMITTEE", Name: "Working", SortOrder: 5, Active: true},
			{ID: "tt-extended", EventID: "e1", Code: "EXTENDED", Name: "Extended", SortOrder: 6, Active: true},
		},
		Member: &Member{
			ID:     "m1",
			Name:   "Alex",
			Status: &MembershipStatus{Code: status, Active: true},
		},
	}
}

func evaluate(t *testing.T, snap *EligibilitySnapshot, code string) EligibilityResult {
	t.Helper()
	ev := NewEligibilityEvaluator(nil, 0)
	res := ev.Evaluate(EligibilityRequest{MemberID: snap.MemberID, EventID: "e1", TicketTypeCode: code, Snapshot: snap})
	if res.Allowed != res.ReasonCode.Allows() {
		t.Fatalf("allowed flag disagrees with code %s", res.ReasonCode)
	}
	if !res.ReasonCode.Known() {
		t.Fatalf("unknown reason code %s", res.ReasonCode)
	}
	return res
}

func expectCode(t *testing.T, res EligibilityResult, want ReasonCode) {
	t.Helper()
	if res.ReasonCode != want {
		t.Fatalf("expected %s, got %s (%s)", want, res.ReasonCode, res.ReasonDetail)
	}
}

func TestEligibilityIdentityAndExistence(t *testing.T) {
	snap := fixture(TierFirstYear)
	ev := NewEligibilityEvaluator(nil, 0)

	res := ev.Evaluate(EligibilityRequest{EventID: "e1", TicketTypeCode: "MEMBER", Snapshot: snap})
	expectCode(t, res, ReasonNotLoggedIn)

	res = ev.Evaluate(EligibilityRequest{MemberID: "m1", EventID: "other", TicketTypeCode: "MEMBER", Snapshot: snap})
	expectCode(t, res, ReasonEventNotFound)

	noEvent := fixture(TierFirstYear)
	noEvent.Event = nil
	expectCode(t, evaluate(t, noEvent, "MEMBER"), ReasonEventNotFound)

	expectCode(t, evaluate(t, snap, "VIP"), ReasonTicketTypeNotFound)

	noMember := fixture(TierFirstYear)
	noMember.Member = nil
	expectCode(t, evaluate(t, noMember, "MEMBER"), ReasonMemberNotFound)
	if !ReasonMemberNotFound.NotFound() || ReasonNotLoggedIn.NotFound() {
		t.Fatalf("NotFound classification wrong")
	}
}

func TestEligibilityOverridePrecedence(t *testing.T) {
	// lapsed member with no committees would fail every rule
	snap := fixture(TierLapsed)
	snap.Member.Status.Active = false
	snap.Overrides = []Override{{ID: "o1", MemberID: "m1", TicketTypeID: "tt-sponsor", Allow: true, Reason: "guest of honour"}}
	res := evaluate(t, snap, "SPONSOR_COMMITTEE")
	expectCode(t, res, ReasonOverrideAllowed)
	if res.ReasonDetail != "guest of honour" {
		t.Fatalf("expected override reason as detail, got %q", res.ReasonDetail)
	}

	// deny override beats a public ticket
	snap = fixture(TierThirdYearPlus)
	snap.Overrides = []Override{{ID: "o2", MemberID: "m1", TicketTypeID: "tt-guest", Allow: false, Reason: "banned"}}
	expectCode(t, evaluate(t, snap, "GUEST"), ReasonOverrideDenied)

	// override applies before member existence
	snap = fixture(TierFirstYear)
	snap.Member = nil
	snap.Overrides = []Override{{ID: "o3", MemberID: "m1", TicketTypeID: "tt-member", Allow: true}}
	expectCode(t, evaluate(t, snap, "MEMBER"), ReasonOverrideAllowed)

	// overrides for other members are ignored
	snap = fixture(TierFirstYear)
	snap.Overrides = []Override{{ID: "o4", MemberID: "m2", TicketTypeID: "tt-member", Allow: false}}
	expectCode(t, evaluate(t, snap, "MEMBER"), ReasonAllowed)
}

func TestEligibilityMembershipOnEventDate(t *testing.T) {
	snap := fixture(TierFirstYear)
	snap.Member.Status.Active = false
	expectCode(t, evaluate(t, snap, "MEMBER"), ReasonNotMemberOnEventDate)
	// guests do not need membership
	expectCode(t, evaluate(t, snap, "GUEST"), ReasonAllowed)

	snap = fixture(TierFirstYear)
	snap.Member.Status = nil
	expectCode(t, evaluate(t, snap, "MEMBER"), ReasonNotMemberOnEventDate)

	snap = fixture(TierFirstYear)
	end := eventStart.Add(-24 * time.Hour)
	snap.Member.MembershipEnd = &end
	expectCode(t, evaluate(t, snap, "MEMBER"), ReasonNotMemberOnEventDate)

	// an explicit as-of inside the window passes
	ev := NewEligibilityEvaluator(nil, 0)
	asOf := end.Add(-time.Hour)
	res := ev.Evaluate(EligibilityRequest{MemberID: "m1", EventID: "e1", TicketTypeCode: "MEMBER", AsOf: &asOf, Snapshot: snap})
	expectCode(t, res, ReasonAllowed)
}

func TestEligibilityNewcomerTicket(t *testing.T) {
	expectCode(t, evaluate(t, fixture(TierNewcomer), "NEWCOMER"), ReasonNewbieToNewcomerAllowed)
	expectCode(t, evaluate(t, fixture(" newcomer"), "NEWCOMER"), ReasonNewbieToNewcomerAllowed)

	res := evaluate(t, fixture(TierFirstYear), "NEWCOMER")
	expectCode(t, res, ReasonWrongMemberLevel)
	if !strings.Contains(res.ReasonDetail, "FIRST_YEAR") {
		t.Fatalf("detail should name the member status, got %q", res.ReasonDetail)
	}

	// a higher tier does not satisfy a newcomer-only ticket
	res = evaluate(t, fixture(TierExtended), "NEWCOMER")
	expectCode(t, res, ReasonWrongMemberLevel)
	if !strings.Contains(res.ReasonDetail, "EXTENDED") {
		t.Fatalf("detail should name the member status, got %q", res.ReasonDetail)
	}
	expectCode(t, evaluate(t, fixture(TierThirdYearPlus), "NEWCOMER"), ReasonWrongMemberLevel)

	// newcomer ticket that also needs a working committee still checks it
	snap := fixture(TierNewcomer)
	snap.TicketTypes[2].Constraints = &ConstraintOverrides{RequiresWorkingCommittee: boolPtr(true)}
	expectCode(t, evaluate(t, snap, "NEWCOMER"), ReasonNotInWorkingCommittee)
	snap.Member.CommitteeMemberships = []CommitteeMembership{{CommitteeID: "c1", StartDate: eventStart.Add(-time.Hour)}}
	expectCode(t, evaluate(t, snap, "NEWCOMER"), ReasonNewbieToNewcomerAllowed)
}

func TestEligibilityAllowedStatuses(t *testing.T) {
	expectCode(t, evaluate(t, fixture(TierExtended), "EXTENDED"), ReasonAllowed)
	expectCode(t, evaluate(t, fixture(TierThirdYearPlus), "EXTENDED"), ReasonAllowed)
	res := evaluate(t, fixture(TierSecondYear), "EXTENDED")
	expectCode(t, res, ReasonWrongMemberLevel)
	if !strings.Contains(res.ReasonDetail, "EXTENDED") {
		t.Fatalf("detail should list allowed statuses, got %q", res.ReasonDetail)
	}

	// list with both NEWCOMER and EXTENDED is a plain allow-list
	snap := fixture(TierNewcomer)
	snap.TicketTypes[0].Constraints = &ConstraintOverrides{AllowedMemberStatuses: []TierCode{TierNewcomer, TierExtended}}
	expectCode(t, evaluate(t, snap, "MEMBER"), ReasonAllowed)

	// explicit empty list clears the default restriction
	snap = fixture(TierFirstYear)
	snap.TicketTypes[5].Constraints = &ConstraintOverrides{AllowedMemberStatuses: []TierCode{}}
	expectCode(t, evaluate(t, snap, "EXTENDED"), ReasonAllowed)
}

func TestEligibilitySponsorCommittee(t *testing.T) {
	snap := fixture(TierFirstYear)
	res := evaluate(t, snap, "SPONSOR_COMMITTEE")
	expectCode(t, res, ReasonNotInSponsorCommittee)
	if res.ReasonDetail != "no sponsoring committees" {
		t.Fatalf("unexpected detail %q", res.ReasonDetail)
	}

	// no sponsors denies even a member with an active committee membership
	snap.Member.CommitteeMemberships = []CommitteeMembership{{CommitteeID: "c-social", StartDate: eventStart.Add(-30 * 24 * time.Hour)}}
	expectCode(t, evaluate(t, snap, "SPONSOR_COMMITTEE"), ReasonNotInSponsorCommittee)
	snap.Member.CommitteeMemberships = nil

	snap.Sponsorships = []Sponsorship{
		{EventID: "e1", CommitteeID: "c-social", CommitteeName: "Social", Kind: SponsorPrimary},
		{EventID: "e1", CommitteeID: "c-arts", CommitteeName: "Arts", Kind: SponsorCo},
		{EventID: "e1", CommitteeID: "c-social", CommitteeName: "Social", Kind: SponsorCo},
	}
	res = evaluate(t, snap, "SPONSOR_COMMITTEE")
	expectCode(t, res, ReasonNotInSponsorCommittee)
	if res.ReasonDetail != "member must be in one of: Social, Arts" {
		t.Fatalf("unexpected detail %q", res.ReasonDetail)
	}

	// ended membership does not count
	ended := eventStart.Add(-48 * time.Hour)
	snap.Member.CommitteeMemberships = []CommitteeMembership{{CommitteeID: "c-arts", StartDate: eventStart.AddDate(-1, 0, 0), EndDate: &ended}}
	expectCode(t, evaluate(t, snap, "SPONSOR_COMMITTEE"), ReasonNotInSponsorCommittee)

	// co-sponsor membership active on the event date
	snap.Member.CommitteeMemberships = append(snap.Member.CommitteeMemberships,
		CommitteeMembership{CommitteeID: "c-arts", StartDate: eventStart.AddDate(0, -1, 0), EndDate: &eventStart})
	expectCode(t, evaluate(t, snap, "SPONSOR_COMMITTEE"), ReasonAllowed)
}

func TestEligibilityWorkingCommittee(t *testing.T) {
	snap := fixture(TierSecondYear)
	expectCode(t, evaluate(t, snap, "WORKING_COMMITTEE"), ReasonNotInWorkingCommittee)

	future := eventStart.Add(time.Hour)
	snap.Member.CommitteeMemberships = []CommitteeMembership{{CommitteeID: "c-any", StartDate: future}}
	expectCode(t, evaluate(t, snap, "WORKING_COMMITTEE"), ReasonNotInWorkingCommittee)

	snap.Member.CommitteeMemberships = []CommitteeMembership{{CommitteeID: "c-any", StartDate: eventStart}}
	expectCode(t, evaluate(t, snap, "WORKING_COMMITTEE"), ReasonAllowed)
}

func TestEligibilityUnknownCodeFallsBackToMembership(t *testing.T) {
	snap := fixture(TierFirstYear)
	snap.TicketTypes = append(snap.TicketTypes, TicketType{ID: "tt-vip", EventID: "e1", Code: "VIP", Active: true})
	expectCode(t, evaluate(t, snap, "VIP"), ReasonAllowed)
	snap.Member.Status.Active = false
	expectCode(t, evaluate(t, snap, "VIP"), ReasonNotMemberOnEventDate)
}

func TestEligibilityStoredOverridesWin(t *testing.T) {
	snap := fixture(TierFirstYear)
	snap.TicketTypes[1].Constraints = &ConstraintOverrides{RequiresMembership: boolPtr(true)}
	snap.Member.Status.Active = false
	expectCode(t, evaluate(t, snap, "GUEST"), ReasonNotMemberOnEventDate)

	snap = fixture(TierFirstYear)
	snap.Member.Status.Active = false
	snap.TicketTypes[0].Constraints = &ConstraintOverrides{RequiresMembership: boolPtr(false)}
	expectCode(t, evaluate(t, snap, "MEMBER"), ReasonAllowed)
}

func TestEligibilityIsIdempotent(t *testing.T) {
	snap := fixture(TierNewcomer)
	snap.Sponsorships = []Sponsorship{{EventID: "e1", CommitteeID: "c1", CommitteeName: "Social"}}
	ev := NewEligibilityEvaluator(nil, 3)
	first, _ := json.Marshal(ev.EvaluateAll(snap, nil))
	for i := 0; i < 10; i++ {
		again, _ := json.Marshal(ev.EvaluateAll(snap, nil))
		if string(first) != string(again) {
			t.Fatalf("batch result changed between runs:\n%s\n%s", first, again)
		}
	}
}

func TestEvaluateAllOrderingAndInactive(t *testing.T) {
	snap := fixture(TierFirstYear)
	snap.TicketTypes = append(snap.TicketTypes,
		TicketType{ID: "tt-old", EventID: "e1", Code: "EARLY_BIRD", SortOrder: 0, Active: false},
		TicketType{ID: "tt-a", EventID: "e1", Code: "AAA", SortOrder: 2, Active: true},
		TicketType{ID: "tt-x", EventID: "e2", Code: "OTHER_EVENT", SortOrder: 0, Active: true},
	)
	batch := NewEligibilityEvaluator(nil, 2).EvaluateAll(snap, nil)
	if batch.EventID != "e1" || batch.MemberID != "m1" {
		t.Fatalf("unexpected batch header %+v", batch)
	}
	var codes []string
	for _, row := range batch.TicketTypes {
		codes = append(codes, row.Code)
		if row.Eligibility == nil {
			t.Fatalf("row %s has no result: %s", row.Code, row.Error)
		}
	}
	want := "MEMBER,AAA,GUEST,NEWCOMER,SPONSOR_COMMITTEE,WORKING_COMMITTEE,EXTENDED"
	if got := strings.Join(codes, ","); got != want {
		t.Fatalf("expected order %s, got %s", want, got)
	}
}

func TestEvaluateAllMissingEvent(t *testing.T) {
	snap := fixture(TierFirstYear)
	snap.Event = nil
	batch := NewEligibilityEvaluator(nil, 0).EvaluateAll(snap, nil)
	if len(batch.TicketTypes) != 0 || batch.MemberID != "m1" {
		t.Fatalf("expected empty batch, got %+v", batch)
	}
	data, _ := json.Marshal(batch)
	if !strings.Contains(string(data), `"ticketTypes":[]`) {
		t.Fatalf("ticketTypes should encode as an empty array, got %s", data)
	}
}

type panickingProvider struct{ code string }

func (p panickingProvider) DefaultsFor(code string) Constraints {
	if code == p.code {
		panic("constraint table corrupted")
	}
	return DefaultConstraints().DefaultsFor(code)
}

func TestEvaluateAllIsolatesFailures(t *testing.T) {
	snap := fixture(TierFirstYear)
	batch := NewEligibilityEvaluator(panickingProvider{code: "GUEST"}, 4).EvaluateAll(snap, nil)
	if len(batch.TicketTypes) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(batch.TicketTypes))
	}
	for _, row := range batch.TicketTypes {
		if row.Code == "GUEST" {
			if row.Eligibility != nil || !strings.Contains(row.Error, "corrupted") {
				t.Fatalf("expected GUEST row to carry the failure, got %+v", row)
			}
			continue
		}
		if row.Eligibility == nil {
			t.Fatalf("row %s should still be evaluated", row.Code)
		}
	}
}

func TestEvaluateWithTrace(t *testing.T) {
	snap := fixture(TierFirstYear)
	res, trace := NewEligibilityEvaluator(nil, 0).EvaluateWithTrace(EligibilityRequest{MemberID: "m1", EventID: "e1", TicketTypeCode: "WORKING_COMMITTEE", Snapshot: snap})
	expectCode(t, res, ReasonNotInWorkingCommittee)
	if len(trace) == 0 || !strings.HasPrefix(trace[len(trace)-1], "8.") {
		t.Fatalf("trace should stop at the working committee stage, got %v", trace)
	}
}

func TestNilSnapshotPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil snapshot")
		}
	}()
	NewEligibilityEvaluator(nil, 0).Evaluate(EligibilityRequest{MemberID: "m1"})
}

func TestReasonCodeJSON(t *testing.T) {
	res := newResult(ReasonOverrideDenied, "banned")
	data, _ := json.Marshal(res)
	if string(data) != `{"allowed":false,"reasonCode":"OVERRIDE_DENIED","reasonDetail":"banned"}` {
		t.Fatalf("unexpected JSON %s", data)
	}
	allowing := 0
	for _, c := range ReasonCodes() {
		if c.Allows() {
			allowing++
		}
	}
	if allowing != 3 {
		t.Fatalf("expected exactly 3 allowing codes, got %d", allowing)
	}
}

func BenchmarkEvaluateAll(b *testing.B) {
	snap := fixture(TierNewcomer)
	snap.Sponsorships = []Sponsorship{{EventID: "e1", CommitteeID: "c1", CommitteeName: "Social"}}
	snap.Member.CommitteeMemberships = []CommitteeMembership{{CommitteeID: "c1", StartDate: eventStart.AddDate(-1, 0, 0)}}
	ev := NewEligibilityEvaluator(nil, 4)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ev.EvaluateAll(snap, nil)
	}
}
