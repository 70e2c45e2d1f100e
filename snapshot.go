package clubauthz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ============================================================================
// ELIGIBILITY SNAPSHOT
// ============================================================================

// Event is the subset of an event the eligibility chain needs
type Event struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	StartTime time.Time `json:"start_time" yaml:"start_time"`
}

// TicketType is one purchasable offering on an event
type TicketType struct {
	ID          string               `json:"id" yaml:"id"`
	EventID     string               `json:"event_id" yaml:"event_id"`
	Code        string               `json:"code" yaml:"code"`
	Name        string               `json:"name" yaml:"name"`
	SortOrder   int                  `json:"sort_order" yaml:"sort_order"`
	Active      bool                 `json:"active" yaml:"active"`
	Constraints *ConstraintOverrides `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// SponsorKind distinguishes sponsoring and co-sponsoring committees
type SponsorKind string

const (
	SponsorPrimary SponsorKind = "SPONSOR"
	SponsorCo      SponsorKind = "CO_SPONSOR"
)

// Sponsorship links an event to a committee
type Sponsorship struct {
	EventID       string      `json:"event_id" yaml:"event_id"`
	CommitteeID   string      `json:"committee_id" yaml:"committee_id"`
	CommitteeName string      `json:"committee_name" yaml:"committee_name"`
	Kind          SponsorKind `json:"kind" yaml:"kind"`
}

// Override is an explicit allow/deny for one (member, ticket type) pair. It
// takes precedence over every membership and committee rule.
type Override struct {
	ID           string    `json:"id" yaml:"id"`
	MemberID     string    `json:"member_id" yaml:"member_id"`
	TicketTypeID string    `json:"ticket_type_id" yaml:"ticket_type_id"`
	Allow        bool      `json:"allow" yaml:"allow"`
	Reason       string    `json:"reason" yaml:"reason"`
	CreatedBy    string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// MembershipStatus is the member's current status record
type MembershipStatus struct {
	Code   TierCode `json:"code" yaml:"code"`
	Active bool     `json:"active" yaml:"active"`
}

// CommitteeMembership is a dated membership in a committee. EndDate nil
// means open-ended.
type CommitteeMembership struct {
	CommitteeID   string     `json:"committee_id" yaml:"committee_id"`
	CommitteeName string     `json:"committee_name" yaml:"committee_name"`
	Role          string     `json:"role,omitempty" yaml:"role,omitempty"`
	StartDate     time.Time  `json:"start_date" yaml:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`
}

// ActiveOn reports whether the membership covers d.
func (m CommitteeMembership) ActiveOn(d time.Time) bool {
	return activeOn(m.StartDate, m.EndDate, d)
}

// Member is the membership-store view of a member
type Member struct {
	ID                   string                `json:"id" yaml:"id"`
	Name                 string                `json:"name" yaml:"name"`
	Status               *MembershipStatus     `json:"status,omitempty" yaml:"status,omitempty"`
	MembershipStart      *time.Time            `json:"membership_start,omitempty" yaml:"membership_start,omitempty"`
	MembershipEnd        *time.Time            `json:"membership_end,omitempty" yaml:"membership_end,omitempty"`
	CommitteeMemberships []CommitteeMembership `json:"committee_memberships,omitempty" yaml:"committee_memberships,omitempty"`
}

// ActiveOn reports whether the member's status is active and, when a
// membership window is recorded, the window covers d.
func (m *Member) ActiveOn(d time.Time) bool {
	if m == nil || m.Status == nil || !m.Status.Active {
		return false
	}
	if m.MembershipStart != nil && d.Before(*m.MembershipStart) {
		return false
	}
	if m.MembershipEnd != nil && d.After(*m.MembershipEnd) {
		return false
	}
	return true
}

// EligibilitySnapshot holds every input of one evaluation, read at a single
// point in time by the collaborator. A nil Event or Member means not found.
type EligibilitySnapshot struct {
	MemberID     string        `json:"member_id" yaml:"member_id"`
	Event        *Event        `json:"event,omitempty" yaml:"event,omitempty"`
	TicketTypes  []TicketType  `json:"ticket_types" yaml:"ticket_types"`
	Sponsorships []Sponsorship `json:"sponsorships" yaml:"sponsorships"`
	Overrides    []Override    `json:"overrides" yaml:"overrides"`
	Member       *Member       `json:"member,omitempty" yaml:"member,omitempty"`
}

// Checksum returns a deterministic hash of the snapshot and asOf
func (s *EligibilitySnapshot) Checksum(asOf *time.Time) string {
	data, _ := json.Marshal(struct {
		Snapshot *EligibilitySnapshot
		AsOf     *time.Time
	}{s, asOf})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SnapshotLoader fetches a consistent snapshot for (memberID, eventID).
// Implementations should read all parts within one transaction or
// point-in-time view. Not-found parts are returned as nil, not as errors.
type SnapshotLoader interface {
	LoadEligibilitySnapshot(ctx context.Context, memberID, eventID string) (*EligibilitySnapshot, error)
}

// activeOn is the single interval test used everywhere:
// start <= d && (end == nil || end >= d)
func activeOn(start time.Time, end *time.Time, d time.Time) bool {
	if start.After(d) {
		return false
	}
	return end == nil || !end.Before(d)
}
