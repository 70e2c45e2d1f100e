package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/clubauthz"
	"github.com/oarkflow/clubauthz/utils"
)

// MemoryAuditStore implements in-memory audit logging
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*clubauthz.AuditRecord
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*clubauthz.AuditRecord, 0)}
}

func (s *MemoryAuditStore) Record(ctx context.Context, rec *clubauthz.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneRecord(rec))
	return nil
}

func (s *MemoryAuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryAuditStore) GetAccessLog(ctx context.Context, filter clubauthz.AuditFilter) ([]*clubauthz.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*clubauthz.AuditRecord, 0)
	for _, entry := range s.entries {
		if !matchesFilter(entry, filter) {
			continue
		}
		result = append(result, cloneRecord(entry))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func matchesFilter(entry *clubauthz.AuditRecord, filter clubauthz.AuditFilter) bool {
	if filter.Actor != "" && entry.Actor != filter.Actor {
		return false
	}
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if !utils.MatchObjectRef(entry.ObjectRef, filter.ObjectRef) {
		return false
	}
	if filter.Allowed != nil && entry.Allowed != *filter.Allowed {
		return false
	}
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}

// MemoryOverrideStore keeps at most one override per (member, ticket type)
type MemoryOverrideStore struct {
	mu        sync.RWMutex
	overrides map[string]clubauthz.Override
}

func NewMemoryOverrideStore() *MemoryOverrideStore {
	return &MemoryOverrideStore{overrides: make(map[string]clubauthz.Override)}
}

// SetOverride creates or replaces the override for the pair
func (s *MemoryOverrideStore) SetOverride(ctx context.Context, o clubauthz.Override) error {
	if o.MemberID == "" || o.TicketTypeID == "" {
		return fmt.Errorf("override requires member and ticket type")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey(o.MemberID, o.TicketTypeID)] = o
	return nil
}

func (s *MemoryOverrideStore) DeleteOverride(ctx context.Context, memberID, ticketTypeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey(memberID, ticketTypeID)
	if _, ok := s.overrides[key]; !ok {
		return ErrNotFound
	}
	delete(s.overrides, key)
	return nil
}

func (s *MemoryOverrideStore) GetOverride(ctx context.Context, memberID, ticketTypeID string) (*clubauthz.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[overrideKey(memberID, ticketTypeID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

// ListOverrides returns every override of memberID ordered by ticket type
func (s *MemoryOverrideStore) ListOverrides(ctx context.Context, memberID string) ([]clubauthz.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]clubauthz.Override, 0)
	for _, o := range s.overrides {
		if o.MemberID == memberID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketTypeID < out[j].TicketTypeID })
	return out, nil
}

// MemoryScopedRoleStore implements scoped role holdings in memory. Reads are
// served from an immutable snapshot swapped in after every write.
type MemoryScopedRoleStore struct {
	mu       sync.Mutex
	store    map[clubauthz.ObjectRef][]clubauthz.ScopedRole
	snapshot atomic.Value
}

func NewMemoryScopedRoleStore() *MemoryScopedRoleStore {
	store := &MemoryScopedRoleStore{store: make(map[clubauthz.ObjectRef][]clubauthz.ScopedRole)}
	store.snapshot.Store(map[clubauthz.ObjectRef][]clubauthz.ScopedRole{})
	return store
}

func (m *MemoryScopedRoleStore) rebuildSnapshot() {
	copyMap := make(map[clubauthz.ObjectRef][]clubauthz.ScopedRole, len(m.store))
	for ref, holdings := range m.store {
		copyMap[ref] = append([]clubauthz.ScopedRole(nil), holdings...)
	}
	m.snapshot.Store(copyMap)
}

// JoinScopedRole records an active holding. Joining a role already held is a
// no-op.
func (m *MemoryScopedRoleStore) JoinScopedRole(ctx context.Context, subjectID string, ref clubauthz.ObjectRef, role clubauthz.ScopedRoleName, joinedAt time.Time) error {
	if !ref.Valid() {
		return fmt.Errorf("invalid object reference %q", ref.String())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if clubauthz.HoldsActiveRole(m.store[ref], subjectID, ref, role) {
		return nil
	}
	m.store[ref] = append(m.store[ref], clubauthz.ScopedRole{
		SubjectID: subjectID,
		Object:    ref,
		Role:      role,
		JoinedAt:  joinedAt,
	})
	m.rebuildSnapshot()
	return nil
}

// LeaveScopedRole ends an active holding
func (m *MemoryScopedRoleStore) LeaveScopedRole(ctx context.Context, subjectID string, ref clubauthz.ObjectRef, role clubauthz.ScopedRoleName, leftAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.store[ref] {
		if h.SubjectID == subjectID && h.Role == role && h.Active() {
			t := leftAt
			m.store[ref][i].LeftAt = &t
			m.rebuildSnapshot()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryScopedRoleStore) ListScopedRoles(ctx context.Context, subjectID string, ref clubauthz.ObjectRef) ([]clubauthz.ScopedRole, error) {
	snap, _ := m.snapshot.Load().(map[clubauthz.ObjectRef][]clubauthz.ScopedRole)
	out := make([]clubauthz.ScopedRole, 0)
	for _, h := range snap[ref] {
		if h.SubjectID == subjectID {
			out = append(out, h)
		}
	}
	return out, nil
}

// OverrideLister supplies a member's overrides to a snapshot loader
type OverrideLister interface {
	ListOverrides(ctx context.Context, memberID string) ([]clubauthz.Override, error)
}

// MemorySnapshotStore assembles eligibility snapshots from in-memory
// events, ticket types, sponsorships and members.
type MemorySnapshotStore struct {
	mu           sync.RWMutex
	events       map[string]clubauthz.Event
	ticketTypes  map[string][]clubauthz.TicketType
	sponsorships map[string][]clubauthz.Sponsorship
	members      map[string]clubauthz.Member
	overrides    OverrideLister
}

func NewMemorySnapshotStore(overrides OverrideLister) *MemorySnapshotStore {
	if overrides == nil {
		overrides = NewMemoryOverrideStore()
	}
	return &MemorySnapshotStore{
		events:       make(map[string]clubauthz.Event),
		ticketTypes:  make(map[string][]clubauthz.TicketType),
		sponsorships: make(map[string][]clubauthz.Sponsorship),
		members:      make(map[string]clubauthz.Member),
		overrides:    overrides,
	}
}

func (s *MemorySnapshotStore) PutEvent(ev clubauthz.Event, ticketTypes ...clubauthz.TicketType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	for _, tt := range ticketTypes {
		tt.EventID = ev.ID
		s.ticketTypes[ev.ID] = append(s.ticketTypes[ev.ID], tt)
	}
}

func (s *MemorySnapshotStore) PutSponsorship(sp clubauthz.Sponsorship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sponsorships[sp.EventID] = append(s.sponsorships[sp.EventID], sp)
}

func (s *MemorySnapshotStore) PutMember(m clubauthz.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

// LoadEligibilitySnapshot reads every part under one lock so the snapshot
// is consistent. Missing event or member are left nil.
func (s *MemorySnapshotStore) LoadEligibilitySnapshot(ctx context.Context, memberID, eventID string) (*clubauthz.EligibilitySnapshot, error) {
	overrides, err := s.overrides.ListOverrides(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &clubauthz.EligibilitySnapshot{
		MemberID:     memberID,
		TicketTypes:  append([]clubauthz.TicketType(nil), s.ticketTypes[eventID]...),
		Sponsorships: append([]clubauthz.Sponsorship(nil), s.sponsorships[eventID]...),
		Overrides:    overrides,
	}
	if ev, ok := s.events[eventID]; ok {
		snap.Event = &ev
	}
	if m, ok := s.members[memberID]; ok {
		snap.Member = &m
	}
	return snap, nil
}
