package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/clubauthz"
	"github.com/oarkflow/clubauthz/utils"
)

// SQLAuditStore persists audit records in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) Record(ctx context.Context, rec *clubauthz.AuditRecord) error {
	metaB, _ := json.Marshal(rec.Metadata)
	q := `INSERT INTO audit_log(id, timestamp, actor, impersonator, action, object_ref, allowed, reason_code, impersonating, metadata_json) VALUES(:id, :timestamp, :actor, :impersonator, :action, :object_ref, :allowed, :reason_code, :impersonating, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            rec.ID,
		"timestamp":     sqlTime(rec.Timestamp),
		"actor":         rec.Actor,
		"impersonator":  rec.Impersonator,
		"action":        rec.Action,
		"object_ref":    rec.ObjectRef,
		"allowed":       boolToInt(rec.Allowed),
		"reason_code":   rec.ReasonCode,
		"impersonating": boolToInt(rec.Impersonating),
		"metadata_json": string(metaB),
	})
	return err
}

// GetAccessLog filters by column where it can and applies the object-ref
// glob afterwards, so Limit counts matching rows only.
func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter clubauthz.AuditFilter) ([]*clubauthz.AuditRecord, error) {
	q := `SELECT id, timestamp, actor, impersonator, action, object_ref, allowed, reason_code, impersonating, metadata_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.Actor != "" {
		q += " AND actor = :actor"
		params["actor"] = filter.Actor
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = filter.Action
	}
	if filter.Allowed != nil {
		q += " AND allowed = :allowed"
		params["allowed"] = boolToInt(*filter.Allowed)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = sqlTime(filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = sqlTime(filter.EndTime)
	}
	q += " ORDER BY timestamp"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*clubauthz.AuditRecord, 0)
	for r.Next() {
		var id, actor, impersonator, action, objectRef, reason, metaJSON string
		var timestampRaw interface{}
		var allowedInt, impersonatingInt int
		if err := r.Scan(&id, &timestampRaw, &actor, &impersonator, &action, &objectRef, &allowedInt, &reason, &impersonatingInt, &metaJSON); err != nil {
			return nil, err
		}
		if !utils.MatchObjectRef(objectRef, filter.ObjectRef) {
			continue
		}
		rec := &clubauthz.AuditRecord{
			ID:            id,
			Timestamp:     scanTime(timestampRaw),
			Actor:         actor,
			Impersonator:  impersonator,
			Action:        action,
			ObjectRef:     objectRef,
			Allowed:       allowedInt != 0,
			ReasonCode:    reason,
			Impersonating: impersonatingInt != 0,
		}
		_ = json.Unmarshal([]byte(metaJSON), &rec.Metadata)
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
