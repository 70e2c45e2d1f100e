package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/clubauthz"
)

// SQLScopedRoleStore implements ScopedRoleStore backed by a SQL DB (squealx)
type SQLScopedRoleStore struct {
	db *squealx.DB
}

func NewSQLScopedRoleStore(db *squealx.DB) *SQLScopedRoleStore {
	return &SQLScopedRoleStore{db: db}
}

// JoinScopedRole records an active holding. Rejoining after leaving clears
// the left_at mark.
func (s *SQLScopedRoleStore) JoinScopedRole(ctx context.Context, subjectID string, ref clubauthz.ObjectRef, role clubauthz.ScopedRoleName, joinedAt time.Time) error {
	if !ref.Valid() {
		return fmt.Errorf("invalid object reference %q", ref.String())
	}
	q := `INSERT INTO scoped_roles(subject_id, object_type, object_id, role, joined_at, left_at) VALUES(:subject_id, :object_type, :object_id, :role, :joined_at, NULL)
ON CONFLICT(subject_id, object_type, object_id, role) DO UPDATE SET joined_at = excluded.joined_at, left_at = NULL WHERE scoped_roles.left_at IS NOT NULL`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"subject_id":  subjectID,
		"object_type": string(ref.Type),
		"object_id":   ref.ID,
		"role":        string(role),
		"joined_at":   joinedAt,
	})
	return err
}

// LeaveScopedRole ends an active holding
func (s *SQLScopedRoleStore) LeaveScopedRole(ctx context.Context, subjectID string, ref clubauthz.ObjectRef, role clubauthz.ScopedRoleName, leftAt time.Time) error {
	q := `UPDATE scoped_roles SET left_at = :left_at WHERE subject_id = :subject_id AND object_type = :object_type AND object_id = :object_id AND role = :role AND left_at IS NULL`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"subject_id":  subjectID,
		"object_type": string(ref.Type),
		"object_id":   ref.ID,
		"role":        string(role),
		"left_at":     sqlNullTimeOrNil(&leftAt),
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLScopedRoleStore) ListScopedRoles(ctx context.Context, subjectID string, ref clubauthz.ObjectRef) ([]clubauthz.ScopedRole, error) {
	out := make([]clubauthz.ScopedRole, 0)
	q := `SELECT role, joined_at, left_at FROM scoped_roles WHERE subject_id = :subject_id AND object_type = :object_type AND object_id = :object_id ORDER BY role`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"subject_id":  subjectID,
		"object_type": string(ref.Type),
		"object_id":   ref.ID,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for r.Next() {
		var role string
		var joinedRaw, leftRaw interface{}
		if err := r.Scan(&role, &joinedRaw, &leftRaw); err != nil {
			return nil, err
		}
		out = append(out, clubauthz.ScopedRole{
			SubjectID: subjectID,
			Object:    ref,
			Role:      clubauthz.ScopedRoleName(role),
			JoinedAt:  scanTime(joinedRaw),
			LeftAt:    scanNullableTime(leftRaw),
		})
	}
	return out, nil
}
