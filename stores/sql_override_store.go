package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oarkflow/squealx"

	"github.com/oarkflow/clubauthz"
)

// SQLOverrideStore persists per-member ticket overrides (squealx)
type SQLOverrideStore struct {
	db *squealx.DB
}

func NewSQLOverrideStore(db *squealx.DB) *SQLOverrideStore {
	return &SQLOverrideStore{db: db}
}

// SetOverride creates or replaces the override for the pair
func (s *SQLOverrideStore) SetOverride(ctx context.Context, o clubauthz.Override) error {
	if o.MemberID == "" || o.TicketTypeID == "" {
		return fmt.Errorf("override requires member and ticket type")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	q := `INSERT OR REPLACE INTO ticket_overrides(id, member_id, ticket_type_id, allow, reason, created_by, created_at) VALUES(:id, :member_id, :ticket_type_id, :allow, :reason, :created_by, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":             o.ID,
		"member_id":      o.MemberID,
		"ticket_type_id": o.TicketTypeID,
		"allow":          boolToInt(o.Allow),
		"reason":         o.Reason,
		"created_by":     o.CreatedBy,
		"created_at":     o.CreatedAt,
	})
	return err
}

func (s *SQLOverrideStore) DeleteOverride(ctx context.Context, memberID, ticketTypeID string) error {
	q := `DELETE FROM ticket_overrides WHERE member_id = :member_id AND ticket_type_id = :ticket_type_id`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"member_id": memberID, "ticket_type_id": ticketTypeID})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLOverrideStore) GetOverride(ctx context.Context, memberID, ticketTypeID string) (*clubauthz.Override, error) {
	out, err := s.query(ctx, `SELECT id, member_id, ticket_type_id, allow, reason, created_by, created_at FROM ticket_overrides WHERE member_id = :member_id AND ticket_type_id = :ticket_type_id`,
		map[string]any{"member_id": memberID, "ticket_type_id": ticketTypeID})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// ListOverrides returns every override of memberID ordered by ticket type
func (s *SQLOverrideStore) ListOverrides(ctx context.Context, memberID string) ([]clubauthz.Override, error) {
	return s.query(ctx, `SELECT id, member_id, ticket_type_id, allow, reason, created_by, created_at FROM ticket_overrides WHERE member_id = :member_id ORDER BY ticket_type_id`,
		map[string]any{"member_id": memberID})
}

func (s *SQLOverrideStore) query(ctx context.Context, q string, params map[string]any) ([]clubauthz.Override, error) {
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]clubauthz.Override, 0)
	for r.Next() {
		var o clubauthz.Override
		var allowInt int
		var createdRaw interface{}
		if err := r.Scan(&o.ID, &o.MemberID, &o.TicketTypeID, &allowInt, &o.Reason, &o.CreatedBy, &createdRaw); err != nil {
			return nil, err
		}
		o.Allow = allowInt != 0
		o.CreatedAt = scanTime(createdRaw)
		out = append(out, o)
	}
	return out, nil
}
