package clubauthz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/oarkflow/clubauthz/logger"
)

// ============================================================================
// ENGINE
// ============================================================================

// EngineOption configures an Engine
type EngineOption func(*Engine) error

// Engine ties the pure evaluators together and reports every terminal
// decision to the audit hook. Evaluation never waits on auditing.
type Engine struct {
	table        *CapabilityTable
	extraBlocked []Capability
	constraints  ConstraintProvider

	guard       *ImpersonationGuard
	scope       *ScopeEvaluator
	eligibility *EligibilityEvaluator

	logger      Logger
	traceIDFunc TraceIDFunc
	clock       func() time.Time

	audit           AuditHook
	auditCh         chan *AuditRecord
	auditBufferSize int
	auditWG         sync.WaitGroup
	auditMu         sync.RWMutex
	closed          bool
	auditFailures   atomic.Int64
	auditDropped    atomic.Int64

	batchWorkerCount int

	decisionCache    *ristretto.Cache
	decisionCacheTTL time.Duration
}

// WithCapabilityTable replaces the default role table
func WithCapabilityTable(t *CapabilityTable) EngineOption {
	return func(e *Engine) error {
		if t == nil {
			return fmt.Errorf("capability table is nil")
		}
		e.table = t
		return nil
	}
}

// WithBlockedCapabilities adds entries to the impersonation blocklist
func WithBlockedCapabilities(caps ...Capability) EngineOption {
	return func(e *Engine) error {
		e.extraBlocked = append(e.extraBlocked, caps...)
		return nil
	}
}

// WithConstraintProvider sets the per-code ticket constraint defaults
func WithConstraintProvider(p ConstraintProvider) EngineOption {
	return func(e *Engine) error {
		if p == nil {
			return fmt.Errorf("constraint provider is nil")
		}
		e.constraints = p
		return nil
	}
}

func WithBatchWorkerCount(n int) EngineOption {
	return func(e *Engine) error {
		if n > 0 {
			e.batchWorkerCount = n
		}
		return nil
	}
}

func WithAuditBufferSize(n int) EngineOption {
	return func(e *Engine) error {
		if n > 0 {
			e.auditBufferSize = n
		}
		return nil
	}
}

// WithClock sets the time source used for audit timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now != nil {
			e.clock = now
		}
		return nil
	}
}

// WithDecisionCache caches batch eligibility results keyed by snapshot
// checksum. Identical snapshots always produce identical results; audit
// records of a hit carry cached=true.
func WithDecisionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		if bufferItems <= 0 {
			bufferItems = 64
		}
		if maxCost <= 0 {
			maxCost = 1 << 20
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        numCounters,
			MaxCost:            maxCost,
			BufferItems:        bufferItems,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return fmt.Errorf("decision cache: %w", err)
		}
		e.decisionCache = cache
		e.decisionCacheTTL = ttl
		return nil
	}
}

// NewEngine builds an engine. audit may be nil, in which case decisions are
// only logged.
func NewEngine(audit AuditHook, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		table:            defaultCapabilityTable,
		constraints:      DefaultConstraints(),
		logger:           logger.NewPhusluLogger(),
		traceIDFunc:      uuid.NewString,
		clock:            time.Now,
		audit:            audit,
		auditBufferSize:  1024,
		batchWorkerCount: 4,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.guard = NewImpersonationGuard(e.table, e.extraBlocked...)
	e.scope = NewScopeEvaluator(e.guard)
	e.eligibility = NewEligibilityEvaluator(e.constraints, e.batchWorkerCount)

	e.auditCh = make(chan *AuditRecord, e.auditBufferSize)
	e.auditWG.Add(1)
	go e.auditWorker()
	return e, nil
}

// Close drains pending audit records and releases the decision cache.
func (e *Engine) Close() {
	e.auditMu.Lock()
	if e.closed {
		e.auditMu.Unlock()
		return
	}
	e.closed = true
	close(e.auditCh)
	e.auditMu.Unlock()
	e.auditWG.Wait()
	if e.decisionCache != nil {
		e.decisionCache.Close()
	}
}

// Guard exposes the engine's impersonation guard
func (e *Engine) Guard() *ImpersonationGuard { return e.guard }

// CapabilitiesFor resolves role against the engine's table
func (e *Engine) CapabilitiesFor(role Role) CapabilitySet { return e.table.CapabilitiesFor(role) }

// Check is the guarded capability check for general actions. A context
// without an actor is NOT_AUTHENTICATED.
func (e *Engine) Check(ctx context.Context, actx AuthContext, c Capability) Verdict {
	var v Verdict
	if actx.ActorID == "" {
		v = deny(ReasonNotAuthenticated, c, "no actor")
	} else {
		v = e.guard.Check(actx, c)
	}
	e.record(ctx, actx, string(c), "", v.Allowed, string(v.Reason), nil)
	return v
}

// CanManage decides an object-scoped manage action
func (e *Engine) CanManage(ctx context.Context, actx AuthContext, obj *ScopedObject, holdings []ScopedRole, required ScopedRoleName) Verdict {
	v := e.scope.CanManage(actx, obj, holdings, required)
	e.record(ctx, actx, ActionObjectManage, objectRefString(obj), v.Allowed, string(v.Reason), nil)
	return v
}

// CanView decides an object-scoped read action
func (e *Engine) CanView(ctx context.Context, actx AuthContext, obj *ScopedObject, holdings []ScopedRole) Verdict {
	v := e.scope.CanView(actx, obj, holdings)
	e.record(ctx, actx, ActionObjectView, objectRefString(obj), v.Allowed, string(v.Reason), nil)
	return v
}

// ScopedRoleStore looks up the scoped roles a subject holds on one object.
type ScopedRoleStore interface {
	ListScopedRoles(ctx context.Context, subjectID string, ref ObjectRef) ([]ScopedRole, error)
}

// AccessMode selects the manage or view path of CheckObjectAccess
type AccessMode int

const (
	AccessView AccessMode = iota
	AccessManage
)

// CheckObjectAccess fetches the actor's holdings on obj and evaluates the
// requested mode. Fetch errors are returned without a verdict.
func (e *Engine) CheckObjectAccess(ctx context.Context, actx AuthContext, obj *ScopedObject, mode AccessMode, required ScopedRoleName, store ScopedRoleStore) (Verdict, error) {
	var holdings []ScopedRole
	if obj != nil && actx.ActorID != "" {
		h, err := store.ListScopedRoles(ctx, actx.ActorID, obj.Ref)
		if err != nil {
			return Verdict{}, fmt.Errorf("list scoped roles: %w", err)
		}
		holdings = h
	}
	if mode == AccessManage {
		return e.CanManage(ctx, actx, obj, holdings, required), nil
	}
	return e.CanView(ctx, actx, obj, holdings), nil
}

// EvaluateTicketEligibility runs the eligibility chain for one ticket type
func (e *Engine) EvaluateTicketEligibility(ctx context.Context, req EligibilityRequest) EligibilityResult {
	res := e.eligibility.Evaluate(req)
	e.recordEligibility(ctx, req.MemberID, req.EventID, req.TicketTypeCode, res)
	return res
}

// ExplainTicketEligibility is EvaluateTicketEligibility plus the stage trace
func (e *Engine) ExplainTicketEligibility(ctx context.Context, req EligibilityRequest) (EligibilityResult, []string) {
	res, trace := e.eligibility.EvaluateWithTrace(req)
	e.recordEligibility(ctx, req.MemberID, req.EventID, req.TicketTypeCode, res)
	return res, trace
}

// EvaluateAllTicketEligibility evaluates every active ticket type of the
// snapshot's event.
func (e *Engine) EvaluateAllTicketEligibility(ctx context.Context, snap *EligibilitySnapshot, asOf *time.Time) BatchEligibility {
	var key string
	if e.decisionCache != nil && snap != nil {
		key = snap.Checksum(asOf)
		if cached, ok := e.decisionCache.Get(key); ok {
			batch := copyBatch(cached.(BatchEligibility))
			e.recordBatch(ctx, batch, true)
			return batch
		}
	}
	batch := e.eligibility.EvaluateAll(snap, asOf)
	if key != "" {
		if e.decisionCache.SetWithTTL(key, copyBatch(batch), 1, e.decisionCacheTTL) {
			e.decisionCache.Wait()
		}
	}
	e.recordBatch(ctx, batch, false)
	return batch
}

// CheckTicketEligibility loads a snapshot then evaluates one ticket type.
func (e *Engine) CheckTicketEligibility(ctx context.Context, loader SnapshotLoader, memberID, eventID, code string, asOf *time.Time) (EligibilityResult, error) {
	if memberID == "" {
		return e.EvaluateTicketEligibility(ctx, EligibilityRequest{EventID: eventID, TicketTypeCode: code, Snapshot: &EligibilitySnapshot{}}), nil
	}
	snap, err := loader.LoadEligibilitySnapshot(ctx, memberID, eventID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load snapshot: %w", err)
	}
	return e.EvaluateTicketEligibility(ctx, EligibilityRequest{
		MemberID:       memberID,
		EventID:        eventID,
		TicketTypeCode: code,
		AsOf:           asOf,
		Snapshot:       snap,
	}), nil
}

// CheckAllTicketEligibility loads a snapshot then evaluates every ticket type.
func (e *Engine) CheckAllTicketEligibility(ctx context.Context, loader SnapshotLoader, memberID, eventID string, asOf *time.Time) (BatchEligibility, error) {
	snap, err := loader.LoadEligibilitySnapshot(ctx, memberID, eventID)
	if err != nil {
		return BatchEligibility{}, fmt.Errorf("load snapshot: %w", err)
	}
	return e.EvaluateAllTicketEligibility(ctx, snap, asOf), nil
}

// InvalidateDecisionCache drops every cached batch result
func (e *Engine) InvalidateDecisionCache() {
	if e.decisionCache != nil {
		e.decisionCache.Clear()
	}
}

// AuditFailures counts audit hook errors and panics
func (e *Engine) AuditFailures() int64 { return e.auditFailures.Load() }

// AuditDropped counts records dropped because the audit buffer was full
func (e *Engine) AuditDropped() int64 { return e.auditDropped.Load() }

// ============================================================================
// audit dispatch
// ============================================================================

func (e *Engine) recordEligibility(ctx context.Context, memberID, eventID, code string, res EligibilityResult) {
	meta := map[string]any{"event_id": eventID, "ticket_type": code}
	if res.ReasonDetail != "" {
		meta["detail"] = res.ReasonDetail
	}
	e.record(ctx, AuthContext{ActorID: memberID}, ActionTicketPurchase, ticketObjectRef(eventID, code), res.Allowed, string(res.ReasonCode), meta)
}

func (e *Engine) recordBatch(ctx context.Context, batch BatchEligibility, cached bool) {
	for _, row := range batch.TicketTypes {
		if row.Eligibility == nil {
			e.logger.Error("eligibility evaluation failed", "event_id", batch.EventID, "member_id", batch.MemberID, "ticket_type", row.Code, "error", row.Error)
			continue
		}
		meta := map[string]any{"event_id": batch.EventID, "ticket_type": row.Code, "batch": true, "cached": cached}
		e.record(ctx, AuthContext{ActorID: batch.MemberID}, ActionTicketPurchase, ticketObjectRef(batch.EventID, row.Code), row.Eligibility.Allowed, string(row.Eligibility.ReasonCode), meta)
	}
}

func (e *Engine) record(_ context.Context, actx AuthContext, action, objectRef string, allowed bool, reason string, meta map[string]any) {
	rec := &AuditRecord{
		ID:            e.traceIDFunc(),
		Timestamp:     e.clock(),
		Actor:         actx.ActorID,
		Impersonator:  actx.ImpersonatorID,
		Action:        action,
		ObjectRef:     objectRef,
		Allowed:       allowed,
		ReasonCode:    reason,
		Impersonating: actx.IsImpersonating,
		Metadata:      meta,
	}
	e.logger.Debug("decision",
		"actor", rec.Actor,
		"action", rec.Action,
		"object", rec.ObjectRef,
		"allowed", rec.Allowed,
		"reason", rec.ReasonCode,
		"impersonating", rec.Impersonating,
	)
	if e.audit == nil {
		return
	}
	e.auditMu.RLock()
	defer e.auditMu.RUnlock()
	if e.closed {
		e.auditDropped.Add(1)
		return
	}
	select {
	case e.auditCh <- rec:
	default:
		e.auditDropped.Add(1)
		e.logger.Error("audit buffer full, record dropped", "action", rec.Action, "actor", rec.Actor)
	}
}

func (e *Engine) auditWorker() {
	defer e.auditWG.Done()
	for rec := range e.auditCh {
		e.deliver(rec)
	}
}

func (e *Engine) deliver(rec *AuditRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.auditFailures.Add(1)
			e.logger.Error("audit hook panicked", "id", rec.ID, "panic", fmt.Sprint(r))
		}
	}()
	if err := e.audit.Record(context.Background(), rec); err != nil {
		e.auditFailures.Add(1)
		e.logger.Error("audit hook failed", "id", rec.ID, "action", rec.Action, "error", err)
	}
}

func objectRefString(obj *ScopedObject) string {
	if obj == nil {
		return ""
	}
	return obj.Ref.String()
}

func copyBatch(b BatchEligibility) BatchEligibility {
	out := b
	out.TicketTypes = make([]TicketTypeEligibility, len(b.TicketTypes))
	for i, row := range b.TicketTypes {
		out.TicketTypes[i] = row
		if row.Eligibility != nil {
			res := *row.Eligibility
			out.TicketTypes[i].Eligibility = &res
		}
	}
	return out
}
