// Package proxy is the delegated-call proxy: it owns the settings, the
// delegation registry and the approval queue, and runs every exposed
// operation against them behind its caller guards.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/callproxy/internal/alert"
	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/audit"
	"github.com/ppiankov/callproxy/internal/clock"
	"github.com/ppiankov/callproxy/internal/delegation"
	"github.com/ppiankov/callproxy/internal/forward"
	"github.com/ppiankov/callproxy/internal/metrics"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/policy"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/ratelimit"
	"github.com/ppiankov/callproxy/internal/settings"
	"github.com/ppiankov/callproxy/internal/snapshot"
)

// OwnerOracle reports who owns the proxy.
type OwnerOracle interface {
	IsOwner(id principal.ID) bool
}

// Options configures a Proxy. Self, Owners and Transport are required.
type Options struct {
	Self      principal.ID
	Owners    OwnerOracle
	Transport forward.Transport
	Clock     clock.Clock
	Settings  *settings.Store
	AuditLog  *audit.Log
	Alerts    *alert.Dispatcher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	// Limiter caps delegated calls per delegate. Nil means unlimited.
	Limiter *ratelimit.Limiter
}

// CallResult is the answer to ProxyCall: either the target's reply, or
// the hash under which the request waits for the owner.
type CallResult struct {
	Return    []byte `json:"return,omitempty"`
	QueueHash string `json:"queue_hash,omitempty"`
}

// Queued reports whether the call was queued instead of executed.
func (r CallResult) Queued() bool {
	return r.QueueHash != ""
}

// Proxy is the single owned state of a running proxy.
//
// mu is held for every synchronous portion of an operation and released
// across the transport call. Lock order is always mu, then a component.
type Proxy struct {
	mu sync.Mutex

	self     principal.ID
	owners   OwnerOracle
	clock    clock.Clock
	settings *settings.Store
	registry *delegation.Registry
	queue    *approval.Queue
	executor *forward.Executor
	limiter  *ratelimit.Limiter

	auditLog *audit.Log
	alerts   *alert.Dispatcher
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a Proxy with empty delegations and queue.
func New(opts Options) *Proxy {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Settings == nil {
		opts.Settings = settings.NewStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Proxy{
		self:     opts.Self,
		owners:   opts.Owners,
		clock:    opts.Clock,
		settings: opts.Settings,
		registry: delegation.New(opts.Clock, opts.Settings),
		queue:    approval.New(opts.Clock),
		executor: forward.NewExecutor(opts.Self, opts.Transport),
		limiter:  opts.Limiter,
		auditLog: opts.AuditLog,
		alerts:   opts.Alerts,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Self returns the proxy's own principal.
func (p *Proxy) Self() principal.ID {
	return p.self
}

// IsOwner reports whether id owns the proxy.
func (p *Proxy) IsOwner(id principal.ID) bool {
	return p.owners != nil && p.owners.IsOwner(id)
}

// RequireOwner fails unless caller is an owner.
func (p *Proxy) RequireOwner(caller principal.ID) error {
	if p.IsOwner(caller) {
		return nil
	}
	return unauthorized(caller, "an owner")
}

// RequireOwnerOrDelegate fails unless caller is an owner or holds a
// live delegation. An expired delegation is evicted by the check.
func (p *Proxy) RequireOwnerOrDelegate(caller principal.ID) error {
	if p.IsOwner(caller) || p.registry.IsLive(caller) {
		return nil
	}
	return unauthorized(caller, "an owner or a live delegate")
}

// Grant gives delegate the scope for lifetime, or the default lifetime
// when nil, replacing any delegation it held. Owner only.
func (p *Proxy) Grant(ctx context.Context, caller, delegate principal.ID, scope []model.TargetScope, lifetime *time.Duration) (model.Delegation, error) {
	if err := p.RequireOwner(caller); err != nil {
		return model.Delegation{}, err
	}

	p.mu.Lock()
	d := p.registry.Grant(delegate, scope, lifetime)
	p.updateGauges()
	p.mu.Unlock()

	p.record(ctx, audit.AuditEntry{
		Type:   audit.EventGrant,
		Caller: caller.Text(),
		Target: delegate.Text(),
		Reason: fmt.Sprintf("%d targets until %s", len(d.Scope), d.ExpiresAt.UTC().Format(time.RFC3339)),
	})
	p.logger.Info("delegation granted",
		zap.Stringer("delegate", delegate),
		zap.Int("targets", len(d.Scope)),
		zap.Time("expires_at", d.ExpiresAt))
	return d, nil
}

// Revoke removes delegate's delegation. Owner only.
func (p *Proxy) Revoke(ctx context.Context, caller, delegate principal.ID) (model.Delegation, bool, error) {
	if err := p.RequireOwner(caller); err != nil {
		return model.Delegation{}, false, err
	}

	p.mu.Lock()
	d, ok := p.registry.Revoke(delegate)
	if ok && p.limiter != nil {
		p.limiter.Forget(delegate)
	}
	p.updateGauges()
	p.mu.Unlock()

	if ok {
		p.record(ctx, audit.AuditEntry{Type: audit.EventRevoke, Caller: caller.Text(), Target: delegate.Text()})
		p.logger.Info("delegation revoked", zap.Stringer("delegate", delegate))
	}
	return d, ok, nil
}

// Delegation returns the stored delegation of delegate without an
// expiry check. The owner may look up anyone; a delegate only itself.
func (p *Proxy) Delegation(caller, delegate principal.ID) (model.Delegation, bool, error) {
	if caller != delegate {
		if err := p.RequireOwner(caller); err != nil {
			return model.Delegation{}, false, err
		}
	}
	d, ok := p.registry.Lookup(delegate)
	return d, ok, nil
}

// IsLiveDelegate reports whether delegate holds an unexpired delegation,
// evicting it if expired.
func (p *Proxy) IsLiveDelegate(delegate principal.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := p.registry.IsLive(delegate)
	p.updateGauges()
	return live
}

// Delegations lists all stored delegations. Owner only.
func (p *Proxy) Delegations(caller principal.ID) ([]model.Delegation, error) {
	if err := p.RequireOwner(caller); err != nil {
		return nil, err
	}
	return p.registry.Records(), nil
}

// SweepExpired evicts expired delegations and returns how many. Owner only.
func (p *Proxy) SweepExpired(caller principal.ID) (int, error) {
	if err := p.RequireOwner(caller); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.registry.SweepExpired()
	p.updateGauges()
	return n, nil
}

// SetDefaultLifetime changes the lifetime of grants that name none. Owner only.
func (p *Proxy) SetDefaultLifetime(ctx context.Context, caller principal.ID, d time.Duration) error {
	if err := p.RequireOwner(caller); err != nil {
		return err
	}
	if err := p.settings.SetDefaultLifetime(d); err != nil {
		return err
	}
	p.record(ctx, audit.AuditEntry{Type: audit.EventSettings, Caller: caller.Text(), Reason: "default_lifetime=" + d.String()})
	return nil
}

// SetValidationMode changes which delegated calls need approval. Owner only.
func (p *Proxy) SetValidationMode(ctx context.Context, caller principal.ID, mode model.ValidationMode) error {
	if err := p.RequireOwner(caller); err != nil {
		return err
	}
	p.settings.SetMode(mode)
	p.record(ctx, audit.AuditEntry{Type: audit.EventSettings, Caller: caller.Text(), Reason: "validation_mode=" + string(mode)})
	return nil
}

// Settings returns a copy of the current settings. Owner only.
func (p *Proxy) Settings(caller principal.ID) (settings.Values, error) {
	if err := p.RequireOwner(caller); err != nil {
		return settings.Values{}, err
	}
	return p.settings.Values(), nil
}

// AddDenied denylists target and returns the label stored for it. An
// already denylisted target keeps its label. Owner only.
func (p *Proxy) AddDenied(ctx context.Context, caller, target principal.ID, label string) (string, error) {
	if err := p.RequireOwner(caller); err != nil {
		return "", err
	}
	stored := p.settings.Denylist().Add(target, label)
	p.record(ctx, audit.AuditEntry{Type: audit.EventDenylist, Caller: caller.Text(), Target: target.Text(), Decision: "add", Reason: stored})
	return stored, nil
}

// RemoveDenied removes target from the denylist and returns its label.
// Owner only.
func (p *Proxy) RemoveDenied(ctx context.Context, caller, target principal.ID) (string, bool, error) {
	if err := p.RequireOwner(caller); err != nil {
		return "", false, err
	}
	label, ok := p.settings.Denylist().Remove(target)
	if ok {
		p.record(ctx, audit.AuditEntry{Type: audit.EventDenylist, Caller: caller.Text(), Target: target.Text(), Decision: "remove", Reason: label})
	}
	return label, ok, nil
}

// IsDenied reports whether target is denylisted. Open to any caller.
func (p *Proxy) IsDenied(target principal.ID) bool {
	return p.settings.Denylist().Contains(target)
}

// ProxyCall authorizes req for caller and then forwards it, queues it
// for the owner, or refuses it with *DeniedError. Owner or live delegate.
func (p *Proxy) ProxyCall(ctx context.Context, caller principal.ID, req model.CallRequest) (CallResult, error) {
	if err := p.RequireOwnerOrDelegate(caller); err != nil {
		return CallResult{}, err
	}

	isOwner := p.IsOwner(caller)

	p.mu.Lock()
	decision := policy.Authorize(policy.Request{
		Caller:  caller,
		IsOwner: isOwner,
		Target:  req.Target,
		Method:  req.Method,
		Mode:    p.settings.Mode(),
	}, p.settings.Denylist(), p.registry)

	if _, denied := decision.(policy.Deny); !denied && !isOwner && p.limiter != nil {
		if res := p.limiter.Allow(caller, p.clock.Now()); res.Exceeded {
			decision = policy.Deny{Reason: res.Reason, RuleID: ratelimit.RuleID}
		}
	}

	var (
		hash    string
		created bool
	)
	if _, ok := decision.(policy.RequireApproval); ok {
		hash, created = p.queue.Submit(caller, req)
	}
	p.updateGauges()
	p.mu.Unlock()

	p.metrics.RecordDecision(decision.Kind(), decision.Rule())
	event := alert.AlertEvent{
		RequestID: RequestID(ctx),
		Caller:    caller.Text(),
		Target:    req.Target.Text(),
		Method:    req.Method,
		Decision:  decision.Kind(),
		QueueHash: hash,
	}

	switch d := decision.(type) {
	case policy.Deny:
		event.Reason = d.Reason
		p.recordDecision(ctx, event, d.Rule())
		p.notify(event)
		p.logger.Warn("call denied",
			zap.Stringer("caller", caller),
			zap.Stringer("target", req.Target),
			zap.String("method", req.Method),
			zap.String("reason", d.Reason))
		return CallResult{}, &DeniedError{Caller: caller, Target: req.Target, Method: req.Method, Reason: d.Reason, Rule: d.Rule()}

	case policy.RequireApproval:
		event.Reason = "validation mode " + string(d.Mode)
		p.recordDecision(ctx, event, d.Rule())
		if created {
			p.notify(event)
		}
		p.logger.Info("call queued for approval",
			zap.Stringer("caller", caller),
			zap.String("method", req.Method),
			zap.String("hash", hash),
			zap.Bool("new", created))
		return CallResult{QueueHash: hash}, nil

	case policy.Allow:
		p.recordDecision(ctx, event, d.Rule())
		ret, err := p.Forward(ctx, req)
		if err != nil {
			return CallResult{}, err
		}
		return CallResult{Return: ret}, nil

	default:
		return CallResult{}, fmt.Errorf("unknown policy decision %T", decision)
	}
}

// Forward executes req through the transport with no authorization.
// It implements approval.Forwarder.
func (p *Proxy) Forward(ctx context.Context, req model.CallRequest) ([]byte, error) {
	start := time.Now()
	ret, err := p.executor.Forward(ctx, req)
	p.metrics.RecordForward(err, time.Since(start))

	entry := audit.AuditEntry{Type: audit.EventForward, Target: req.Target.Text(), Method: req.Method, Decision: "ok"}
	if err != nil {
		entry.Decision = "error"
		entry.Reason = err.Error()
		p.logger.Warn("forward failed",
			zap.Stringer("target", req.Target),
			zap.String("method", req.Method),
			zap.Error(err))
	}
	p.record(ctx, entry)
	return ret, err
}

// Confirm resolves a queued request. On approval it is forwarded and
// its outcome stored; a failed forward is stored as an approved error
// outcome, never left pending. Owner only.
func (p *Proxy) Confirm(ctx context.Context, caller principal.ID, hash string, approve bool) (approval.Disposition, error) {
	if err := p.RequireOwner(caller); err != nil {
		return nil, err
	}

	entry, _ := p.queue.Get(hash)
	d, err := p.queue.Resolve(ctx, hash, approve, p)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.updateGauges()
	p.mu.Unlock()

	p.metrics.RecordResolution(d.Kind())
	event := alert.AlertEvent{
		RequestID: RequestID(ctx),
		Caller:    entry.Requester.Text(),
		Target:    entry.Payload.Target.Text(),
		Method:    entry.Payload.Method,
		Decision:  d.Kind(),
		QueueHash: hash,
	}
	if a, ok := d.(approval.Approved); ok && !a.Outcome.OK() {
		event.Reason = a.Outcome.Err
	}
	p.record(ctx, audit.AuditEntry{
		Type:      audit.EventResolution,
		Caller:    caller.Text(),
		Target:    event.Target,
		Method:    event.Method,
		Decision:  event.Decision,
		Reason:    event.Reason,
		QueueHash: hash,
	})
	p.notify(event)
	p.logger.Info("queued call resolved",
		zap.String("hash", hash),
		zap.String("disposition", d.Kind()))
	return d, nil
}

// HasQueued reports whether hash is in the queue. Owner or live delegate.
func (p *Proxy) HasQueued(caller principal.ID, hash string) (bool, error) {
	if err := p.RequireOwnerOrDelegate(caller); err != nil {
		return false, err
	}
	return p.queue.Has(hash), nil
}

// QueueReply returns the disposition of a queued request, or false if
// the hash is unknown. Owner or live delegate.
func (p *Proxy) QueueReply(caller principal.ID, hash string) (approval.Disposition, bool, error) {
	if err := p.RequireOwnerOrDelegate(caller); err != nil {
		return nil, false, err
	}
	d, ok := p.queue.Reply(hash)
	return d, ok, nil
}

// QueuedRequest returns a queued entry. The owner may read any entry; a
// live delegate only its own.
func (p *Proxy) QueuedRequest(caller principal.ID, hash string) (approval.Entry, error) {
	if err := p.RequireOwnerOrDelegate(caller); err != nil {
		return approval.Entry{}, err
	}
	e, ok := p.queue.Get(hash)
	if !ok {
		return approval.Entry{}, fmt.Errorf("%w: %s", approval.ErrNotFound, hash)
	}
	if e.Requester != caller && !p.IsOwner(caller) {
		return approval.Entry{}, unauthorized(caller, "the requester")
	}
	return e, nil
}

// ListResolvedFor lists user's queued requests the owner has already
// answered. Owner only.
func (p *Proxy) ListResolvedFor(caller, user principal.ID) ([]approval.Summary, error) {
	if err := p.RequireOwner(caller); err != nil {
		return nil, err
	}
	return p.queue.ListFor(user), nil
}

// Pending lists all unanswered queued requests. Owner only.
func (p *Proxy) Pending(caller principal.ID) ([]approval.Entry, error) {
	if err := p.RequireOwner(caller); err != nil {
		return nil, err
	}
	return p.queue.Pending(), nil
}

// RemoveQueued deletes a queued request. The owner may delete any entry,
// a live delegate only its own. Reports whether the entry existed.
func (p *Proxy) RemoveQueued(ctx context.Context, caller principal.ID, hash string) (bool, error) {
	if err := p.RequireOwnerOrDelegate(caller); err != nil {
		return false, err
	}

	p.mu.Lock()
	removed, err := p.queue.Remove(hash, caller, p.IsOwner(caller))
	p.updateGauges()
	p.mu.Unlock()
	if err != nil {
		return false, err
	}
	if removed {
		p.record(ctx, audit.AuditEntry{Type: audit.EventQueue, Caller: caller.Text(), Decision: "remove", QueueHash: hash})
	}
	return removed, nil
}

// ExportState captures settings, delegations and queue as one unit.
func (p *Proxy) ExportState() *snapshot.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exportLocked()
}

func (p *Proxy) exportLocked() *snapshot.State {
	return &snapshot.State{
		Version:     snapshot.Version,
		SavedAt:     p.clock.Now(),
		Settings:    snapshot.FromSettings(p.settings.Values()),
		Delegations: p.registry.Records(),
		Queue:       snapshot.FromQueue(p.queue.Entries()),
	}
}

// ImportState replaces settings, delegations and queue with s. On error
// the previous state is kept.
func (p *Proxy) ImportState(s *snapshot.State) error {
	if s == nil {
		return errors.New("import state: nil state")
	}
	entries, err := s.QueueEntries()
	if err != nil {
		return fmt.Errorf("import state: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.exportLocked()
	if err := p.applyLocked(s.Settings, s.Delegations, entries); err != nil {
		prevEntries, _ := prev.QueueEntries()
		if rerr := p.applyLocked(prev.Settings, prev.Delegations, prevEntries); rerr != nil {
			return errors.Join(fmt.Errorf("import state: %w", err), fmt.Errorf("restore previous state: %w", rerr))
		}
		return fmt.Errorf("import state: %w", err)
	}
	p.updateGauges()
	return nil
}

func (p *Proxy) applyLocked(s snapshot.Settings, delegations []model.Delegation, entries []approval.Entry) error {
	if err := p.settings.Restore(s.Values()); err != nil {
		return err
	}
	if err := p.registry.Restore(delegations); err != nil {
		return err
	}
	return p.queue.Restore(entries)
}

// updateGauges must be called with mu held.
func (p *Proxy) updateGauges() {
	if p.metrics == nil {
		return
	}
	p.metrics.SetQueueDepth(p.queue.PendingCount())
	p.metrics.SetDelegations(p.registry.Len())
}

func (p *Proxy) recordDecision(ctx context.Context, ev alert.AlertEvent, rule string) {
	p.record(ctx, audit.AuditEntry{
		Type:      audit.EventDecision,
		Caller:    ev.Caller,
		Target:    ev.Target,
		Method:    ev.Method,
		Decision:  ev.Decision,
		Rule:      rule,
		Reason:    ev.Reason,
		QueueHash: ev.QueueHash,
	})
}

func (p *Proxy) record(ctx context.Context, e audit.AuditEntry) {
	e.RequestID = RequestID(ctx)
	e.Timestamp = p.clock.Now().UTC().Format(audit.TimestampFormat)
	if err := p.auditLog.Record(e); err != nil {
		p.logger.Error("audit write failed", zap.Error(err))
	}
}

func (p *Proxy) notify(ev alert.AlertEvent) {
	if p.alerts == nil {
		return
	}
	ev.Timestamp = p.clock.Now().UTC().Format(time.RFC3339)
	p.alerts.Dispatch(ev)
}
