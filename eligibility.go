package clubauthz

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// REASON CODES
// ============================================================================

// ReasonCode is the stable machine-readable explanation of an eligibility
// result. The set is append-only.
type ReasonCode string

const (
	ReasonAllowed                 ReasonCode = "ALLOWED"
	ReasonNotLoggedIn             ReasonCode = "NOT_LOGGED_IN"
	ReasonEventNotFound           ReasonCode = "EVENT_NOT_FOUND"
	ReasonTicketTypeNotFound      ReasonCode = "TICKET_TYPE_NOT_FOUND"
	ReasonOverrideAllowed         ReasonCode = "OVERRIDE_ALLOWED"
	ReasonOverrideDenied          ReasonCode = "OVERRIDE_DENIED"
	ReasonNotMemberOnEventDate    ReasonCode = "NOT_MEMBER_ON_EVENT_DATE"
	ReasonNewbieToNewcomerAllowed ReasonCode = "NEWBIE_TO_NEWCOMER_ALLOWED"
	ReasonWrongMemberLevel        ReasonCode = "WRONG_MEMBER_LEVEL"
	ReasonNotInSponsorCommittee   ReasonCode = "NOT_IN_SPONSORING_COMMITTEE"
	ReasonNotInWorkingCommittee   ReasonCode = "NOT_IN_WORKING_COMMITTEE"
	ReasonMemberNotFound          ReasonCode = "MEMBER_NOT_FOUND"
)

// ReasonCodes lists every code in declaration order.
func ReasonCodes() []ReasonCode {
	return []ReasonCode{
		ReasonAllowed, ReasonNotLoggedIn, ReasonEventNotFound, ReasonTicketTypeNotFound,
		ReasonOverrideAllowed, ReasonOverrideDenied, ReasonNotMemberOnEventDate,
		ReasonNewbieToNewcomerAllowed, ReasonWrongMemberLevel, ReasonNotInSponsorCommittee,
		ReasonNotInWorkingCommittee, ReasonMemberNotFound,
	}
}

// Allows reports whether the code is one of the three allowing codes.
func (c ReasonCode) Allows() bool {
	switch c {
	case ReasonAllowed, ReasonOverrideAllowed, ReasonNewbieToNewcomerAllowed:
		return true
	case ReasonNotLoggedIn, ReasonEventNotFound, ReasonTicketTypeNotFound,
		ReasonOverrideDenied, ReasonNotMemberOnEventDate, ReasonWrongMemberLevel,
		ReasonNotInSponsorCommittee, ReasonNotInWorkingCommittee, ReasonMemberNotFound:
		return false
	}
	return false
}

// Known reports whether c is part of the declared set
func (c ReasonCode) Known() bool {
	for _, k := range ReasonCodes() {
		if k == c {
			return true
		}
	}
	return false
}

// NotFound is true for codes callers usually map to a 404.
func (c ReasonCode) NotFound() bool {
	return c == ReasonEventNotFound || c == ReasonTicketTypeNotFound || c == ReasonMemberNotFound
}

// ============================================================================
// RESULTS
// ============================================================================

// EligibilityResult carries exactly one reason code. Allowed is derived from
// the code and never set independently.
type EligibilityResult struct {
	Allowed      bool       `json:"allowed"`
	ReasonCode   ReasonCode `json:"reasonCode"`
	ReasonDetail string     `json:"reasonDetail,omitempty"`
}

func newResult(code ReasonCode, detail string) EligibilityResult {
	return EligibilityResult{Allowed: code.Allows(), ReasonCode: code, ReasonDetail: detail}
}

// TicketTypeEligibility is one row of a batch result. Error is set instead of
// Eligibility when that row's evaluation failed with a caller bug.
type TicketTypeEligibility struct {
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Eligibility *EligibilityResult `json:"eligibility,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// BatchEligibility is the per-ticket-type result for one member and event
type BatchEligibility struct {
	EventID     string                  `json:"eventId"`
	MemberID    string                  `json:"memberId"`
	TicketTypes []TicketTypeEligibility `json:"ticketTypes"`
}

// EligibilityRequest asks whether MemberID may buy TicketTypeCode on EventID.
// AsOf defaults to the event start time.
type EligibilityRequest struct {
	MemberID       string
	EventID        string
	TicketTypeCode string
	AsOf           *time.Time
	Snapshot       *EligibilitySnapshot
}

// ============================================================================
// EVALUATOR
// ============================================================================

// EligibilityEvaluator runs the ticket-purchase rule chain. It holds no
// mutable state.
type EligibilityEvaluator struct {
	constraints ConstraintProvider
	workers     int
}

func NewEligibilityEvaluator(constraints ConstraintProvider, workers int) *EligibilityEvaluator {
	if constraints == nil {
		constraints = DefaultConstraints()
	}
	if workers <= 0 {
		workers = 4
	}
	return &EligibilityEvaluator{constraints: constraints, workers: workers}
}

// Evaluate runs the chain for one request. A nil Snapshot is a caller bug.
func (ev *EligibilityEvaluator) Evaluate(req EligibilityRequest) EligibilityResult {
	return ev.evaluate(req, nil)
}

// EvaluateWithTrace also returns the ordered list of stages that ran.
func (ev *EligibilityEvaluator) EvaluateWithTrace(req EligibilityRequest) (EligibilityResult, []string) {
	trace := make([]string, 0, 9)
	res := ev.evaluate(req, &trace)
	return res, trace
}

func (ev *EligibilityEvaluator) evaluate(req EligibilityRequest, trace *[]string) EligibilityResult {
	step := func(format string, args ...any) {
		if trace != nil {
			*trace = append(*trace, fmt.Sprintf(format, args...))
		}
	}
	snap := req.Snapshot
	if snap == nil {
		panic("clubauthz: eligibility request without snapshot")
	}

	// 1. identity
	step("1. identity member=%q", req.MemberID)
	if req.MemberID == "" {
		return newResult(ReasonNotLoggedIn, "")
	}

	// 2. existence
	step("2. existence event=%q ticket_type=%q", req.EventID, req.TicketTypeCode)
	event := snap.Event
	if event == nil || (req.EventID != "" && event.ID != req.EventID) {
		return newResult(ReasonEventNotFound, "")
	}
	tt := findTicketType(snap.TicketTypes, event.ID, req.TicketTypeCode)
	if tt == nil {
		return newResult(ReasonTicketTypeNotFound, "")
	}

	// 3. override
	step("3. override lookup ticket_type_id=%q", tt.ID)
	if o := findOverride(snap.Overrides, req.MemberID, tt.ID); o != nil {
		if o.Allow {
			return newResult(ReasonOverrideAllowed, o.Reason)
		}
		return newResult(ReasonOverrideDenied, o.Reason)
	}

	// 4. member existence
	step("4. member existence")
	member := snap.Member
	if member == nil || member.ID != req.MemberID {
		return newResult(ReasonMemberNotFound, "")
	}

	// 5. constraints
	constraints := tt.Constraints.Merge(ev.constraints.DefaultsFor(tt.Code))
	step("5. constraints %+v", constraints)

	checkDate := event.StartTime
	if req.AsOf != nil {
		checkDate = *req.AsOf
	}

	// 6. membership status
	passCode := ReasonAllowed
	if constraints.RequiresMembership {
		step("6. membership status as of %s", checkDate.Format(time.RFC3339))
		if !member.ActiveOn(checkDate) {
			return newResult(ReasonNotMemberOnEventDate, "")
		}
		status := ParseTierCode(string(member.Status.Code))
		if len(constraints.AllowedMemberStatuses) > 0 {
			if constraints.NewcomerOnly() {
				if status != TierNewcomer {
					return newResult(ReasonWrongMemberLevel, fmt.Sprintf("ticket is for newcomers; member is %s", status))
				}
				passCode = ReasonNewbieToNewcomerAllowed
			} else if !constraints.allows(status) {
				return newResult(ReasonWrongMemberLevel, fmt.Sprintf("member status %s not in %s", status, joinTiers(constraints.AllowedMemberStatuses)))
			}
		}
	}

	// 7. sponsor committee
	if constraints.RequiresSponsorCommittee {
		step("7. sponsor committee")
		sponsors := eventSponsors(snap.Sponsorships, event.ID)
		if len(sponsors) == 0 {
			return newResult(ReasonNotInSponsorCommittee, "no sponsoring committees")
		}
		if !inAnyCommittee(member.CommitteeMemberships, sponsors, checkDate) {
			return newResult(ReasonNotInSponsorCommittee, "member must be in one of: "+committeeNames(sponsors))
		}
	}

	// 8. working committee
	if constraints.RequiresWorkingCommittee {
		step("8. working committee")
		if !hasActiveCommittee(member.CommitteeMemberships, checkDate) {
			return newResult(ReasonNotInWorkingCommittee, "")
		}
	}

	// 9.
	step("9. %s", passCode)
	return newResult(passCode, "")
}

// EvaluateAll evaluates every active ticket type of the snapshot's event.
// Each evaluation is isolated: a panic in one row is reported on that row
// only. Rows follow the ticket types' sort order.
func (ev *EligibilityEvaluator) EvaluateAll(snap *EligibilitySnapshot, asOf *time.Time) BatchEligibility {
	out := BatchEligibility{TicketTypes: []TicketTypeEligibility{}}
	if snap == nil {
		return out
	}
	out.MemberID = snap.MemberID
	if snap.Event == nil {
		return out
	}
	out.EventID = snap.Event.ID

	types := activeTicketTypes(snap.TicketTypes, snap.Event.ID)
	rows := make([]TicketTypeEligibility, len(types))
	sem := make(chan struct{}, ev.workers)
	var wg sync.WaitGroup
	for i := range types {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			rows[i] = ev.evaluateRow(snap, types[i], asOf)
		}(i)
	}
	wg.Wait()
	out.TicketTypes = rows
	return out
}

func (ev *EligibilityEvaluator) evaluateRow(snap *EligibilitySnapshot, tt TicketType, asOf *time.Time) (row TicketTypeEligibility) {
	row = TicketTypeEligibility{Code: tt.Code, Name: tt.Name}
	defer func() {
		if r := recover(); r != nil {
			row.Eligibility = nil
			row.Error = fmt.Sprint(r)
		}
	}()
	res := ev.Evaluate(EligibilityRequest{
		MemberID:       snap.MemberID,
		EventID:        snap.Event.ID,
		TicketTypeCode: tt.Code,
		AsOf:           asOf,
		Snapshot:       snap,
	})
	row.Eligibility = &res
	return row
}

// ============================================================================
// helpers
// ============================================================================

func findTicketType(types []TicketType, eventID, code string) *TicketType {
	for i := range types {
		t := &types[i]
		if t.Code != code {
			continue
		}
		if t.EventID == "" || t.EventID == eventID {
			return t
		}
	}
	return nil
}

func findOverride(overrides []Override, memberID, ticketTypeID string) *Override {
	for i := range overrides {
		if overrides[i].MemberID == memberID && overrides[i].TicketTypeID == ticketTypeID {
			return &overrides[i]
		}
	}
	return nil
}

func activeTicketTypes(types []TicketType, eventID string) []TicketType {
	out := make([]TicketType, 0, len(types))
	for _, t := range types {
		if t.Active && (t.EventID == "" || t.EventID == eventID) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// eventSponsors returns the event's sponsoring committees, de-duplicated,
// in sponsorship order.
func eventSponsors(sponsorships []Sponsorship, eventID string) []Sponsorship {
	seen := make(map[string]struct{}, len(sponsorships))
	out := make([]Sponsorship, 0, len(sponsorships))
	for _, s := range sponsorships {
		if s.EventID != "" && s.EventID != eventID {
			continue
		}
		if _, ok := seen[s.CommitteeID]; ok {
			continue
		}
		seen[s.CommitteeID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func inAnyCommittee(memberships []CommitteeMembership, sponsors []Sponsorship, d time.Time) bool {
	for _, m := range memberships {
		if !m.ActiveOn(d) {
			continue
		}
		for _, s := range sponsors {
			if m.CommitteeID == s.CommitteeID {
				return true
			}
		}
	}
	return false
}

func hasActiveCommittee(memberships []CommitteeMembership, d time.Time) bool {
	for _, m := range memberships {
		if m.ActiveOn(d) {
			return true
		}
	}
	return false
}

func committeeNames(sponsors []Sponsorship) string {
	names := make([]string, 0, len(sponsors))
	for _, s := range sponsors {
		name := s.CommitteeName
		if name == "" {
			name = s.CommitteeID
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func joinTiers(tiers []TierCode) string {
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = string(t)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
