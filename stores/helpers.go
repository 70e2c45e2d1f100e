package stores

import (
	"errors"
	"time"

	"github.com/oarkflow/clubauthz"
	"github.com/oarkflow/date"
)

// ErrNotFound is returned when a looked-up record does not exist
var ErrNotFound = errors.New("not found")

// sqlTimeLayout is fixed width and always UTC so stored timestamps compare
// correctly as text.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sqlTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return date.Parse(s)
}

// scanTime converts a driver timestamp value. SQLite hands back strings.
func scanTime(raw interface{}) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func scanNullableTime(raw interface{}) *time.Time {
	if raw == nil {
		return nil
	}
	t := scanTime(raw)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlNullTimeOrNil(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func cloneRecord(r *clubauthz.AuditRecord) *clubauthz.AuditRecord {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Metadata != nil {
		dup.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

func overrideKey(memberID, ticketTypeID string) string {
	return memberID + "\x00" + ticketTypeID
}
