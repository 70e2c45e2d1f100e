package clubauthz

import (
	"context"
	"time"
)

// AuditRecord describes one terminal decision
type AuditRecord struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         string         `json:"actor"`
	Impersonator  string         `json:"impersonator,omitempty"`
	Action        string         `json:"action"`
	ObjectRef     string         `json:"object_ref,omitempty"`
	Allowed       bool           `json:"allowed"`
	ReasonCode    string         `json:"reason_code"`
	Impersonating bool           `json:"impersonating"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// AuditHook receives a record after every terminal verdict. Its errors never
// affect the verdict.
type AuditHook interface {
	Record(ctx context.Context, rec *AuditRecord) error
}

// AuditHookFunc adapts a function to AuditHook
type AuditHookFunc func(ctx context.Context, rec *AuditRecord) error

func (f AuditHookFunc) Record(ctx context.Context, rec *AuditRecord) error { return f(ctx, rec) }

// AuditFilter narrows an access-log query. ObjectRef accepts glob patterns
// such as "activity_group:*".
type AuditFilter struct {
	Actor     string
	Action    string
	ObjectRef string
	Allowed   *bool
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// AuditStore is an AuditHook that can also be queried
type AuditStore interface {
	AuditHook
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)
}

// Audit action names used for non-capability decisions
const (
	ActionTicketPurchase = "tickets:purchase"
	ActionObjectManage   = "object:manage"
	ActionObjectView     = "object:view"
)

// ticketObjectRef names a ticket type on an event for audit records
func ticketObjectRef(eventID, code string) string {
	return "event:" + eventID + "/ticket_type:" + code
}
