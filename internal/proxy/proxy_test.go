package proxy

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/audit"
	"github.com/ppiankov/callproxy/internal/clock"
	"github.com/ppiankov/callproxy/internal/forward"
	"github.com/ppiankov/callproxy/internal/identity"
	"github.com/ppiankov/callproxy/internal/metrics"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/ratelimit"
	"github.com/ppiankov/callproxy/internal/settings"
)

var (
	t0       = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	self     = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x01, 0x01})
	ledger   = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x01})
	vault    = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x01, 0x01})
	owner    = principal.MustFromBytes([]byte{0x0c})
	user     = principal.MustFromBytes([]byte{0x0a})
	stranger = principal.MustFromBytes([]byte{0x0b})
)

type fakeTransport struct {
	mu    sync.Mutex
	calls []model.CallRequest
	ret   []byte
	err   error
	hook  func()
}

func (f *fakeTransport) RawCall(_ context.Context, target principal.ID, method string, args []byte, amount model.Amount) ([]byte, error) {
	if f.hook != nil {
		f.hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model.CallRequest{Target: target, Method: method, Args: args, Amount: amount})
	return f.ret, f.err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	proxy     *Proxy
	clock     *clock.FakeClock
	transport *fakeTransport
	settings  *settings.Store
	auditPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(t0)
	tr := &fakeTransport{ret: []byte{0x01}}
	st := settings.NewStore()

	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := audit.Open(auditPath)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	p := New(Options{
		Self:      self,
		Owners:    identity.NewOwners(owner),
		Transport: tr,
		Clock:     clk,
		Settings:  st,
		AuditLog:  log,
		Metrics:   metrics.New(),
	})
	return &fixture{proxy: p, clock: clk, transport: tr, settings: st, auditPath: auditPath}
}

func withdrawScope(spec model.MethodSpec) []model.TargetScope {
	spec.Name = "withdraw"
	return []model.TargetScope{{
		Target:  ledger,
		Methods: map[string]model.MethodSpec{"withdraw": spec},
	}}
}

func withdraw() model.CallRequest {
	return model.CallRequest{Target: ledger, Method: "withdraw", Args: []byte{0x44, 0x49, 0x44, 0x4c}, Amount: model.AmountFromUint64(10)}
}

func TestOwnerCallForwardsDirectly(t *testing.T) {
	f := newFixture(t)

	res, err := f.proxy.ProxyCall(context.Background(), owner, withdraw())
	require.NoError(t, err)
	assert.False(t, res.Queued())
	assert.Equal(t, []byte{0x01}, res.Return)
	assert.Equal(t, 1, f.transport.count())
}

func TestOwnerSelfCallRejected(t *testing.T) {
	f := newFixture(t)

	req := withdraw()
	req.Target = self
	_, err := f.proxy.ProxyCall(context.Background(), owner, req)
	require.ErrorIs(t, err, forward.ErrSelfCall)
	assert.Contains(t, err.Error(), "self-call")
	assert.Zero(t, f.transport.count())
}

func TestDenylistAppliesToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	label, err := f.proxy.AddDenied(ctx, owner, ledger, "compromised")
	require.NoError(t, err)
	assert.Equal(t, "compromised", label)
	assert.True(t, f.proxy.IsDenied(ledger))

	_, err = f.proxy.ProxyCall(ctx, owner, withdraw())
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "denylist.block", denied.Rule)
	assert.Zero(t, f.transport.count())

	removed, ok, err := f.proxy.RemoveDenied(ctx, owner, ledger)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "compromised", removed)
	assert.False(t, f.proxy.IsDenied(ledger))
}

func TestUpdateModeQueuesThenApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateUpdate))

	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)
	require.True(t, res.Queued())
	assert.Zero(t, f.transport.count(), "queued call must not reach the target")

	d, ok, err := f.proxy.QueueReply(user, res.QueueHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pending", d.Kind())

	d, err = f.proxy.Confirm(ctx, owner, res.QueueHash, true)
	require.NoError(t, err)
	approved, ok := d.(approval.Approved)
	require.True(t, ok, "expected approved, got %s", d.Kind())
	assert.True(t, approved.Outcome.OK())
	assert.Equal(t, []byte{0x01}, approved.Outcome.Return)

	d, _, err = f.proxy.QueueReply(user, res.QueueHash)
	require.NoError(t, err)
	assert.Equal(t, "approved", d.Kind())
}

func TestKeyModeAllowsNonKeyOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateKey))

	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)
	assert.False(t, res.Queued())
	assert.Equal(t, 1, f.transport.count())
}

func TestApprovedForwardFailureIsStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.err = &forward.RejectError{Code: forward.TargetReject, Message: "insufficient funds"}

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update, KeyOperation: true}), nil)
	require.NoError(t, err)

	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)
	require.True(t, res.Queued())

	d, err := f.proxy.Confirm(ctx, owner, res.QueueHash, true)
	require.NoError(t, err)
	approved, ok := d.(approval.Approved)
	require.True(t, ok)
	assert.False(t, approved.Outcome.OK())
	assert.Contains(t, approved.Outcome.Err, "insufficient funds")
}

func TestRejectDoesNotForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateAll))

	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)

	d, err := f.proxy.Confirm(ctx, owner, res.QueueHash, false)
	require.NoError(t, err)
	assert.Equal(t, "rejected", d.Kind())
	assert.Zero(t, f.transport.count())
}

func TestConfirmUnknownHash(t *testing.T) {
	f := newFixture(t)

	_, err := f.proxy.Confirm(context.Background(), owner, "feed", true)
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestOutOfScopeDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Query}), nil)
	require.NoError(t, err)

	req := withdraw()
	req.Method = "transfer"
	_, err = f.proxy.ProxyCall(ctx, user, req)
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "scope.method", denied.Rule)

	req.Target = vault
	_, err = f.proxy.ProxyCall(ctx, user, req)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "scope.target", denied.Rule)
}

func TestGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.ProxyCall(ctx, stranger, withdraw())
	assert.ErrorIs(t, err, ErrCallerUnauthorized)

	_, err = f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Query}), nil)
	require.NoError(t, err)

	_, err = f.proxy.Grant(ctx, user, stranger, nil, nil)
	assert.ErrorIs(t, err, ErrCallerUnauthorized)
	assert.ErrorIs(t, f.proxy.SetValidationMode(ctx, user, model.ValidateAll), ErrCallerUnauthorized)
	assert.ErrorIs(t, f.proxy.SetDefaultLifetime(ctx, user, time.Hour), ErrCallerUnauthorized)
	_, err = f.proxy.AddDenied(ctx, user, vault, "")
	assert.ErrorIs(t, err, ErrCallerUnauthorized)
	_, err = f.proxy.Confirm(ctx, user, "feed", true)
	assert.ErrorIs(t, err, ErrCallerUnauthorized)
	_, err = f.proxy.ListResolvedFor(user, user)
	assert.ErrorIs(t, err, ErrCallerUnauthorized)
	_, err = f.proxy.Pending(user)
	assert.ErrorIs(t, err, ErrCallerUnauthorized)

	_, err = f.proxy.HasQueued(user, "feed")
	assert.NoError(t, err)
	_, err = f.proxy.HasQueued(stranger, "feed")
	assert.ErrorIs(t, err, ErrCallerUnauthorized)

	// any caller may check the denylist
	assert.False(t, f.proxy.IsDenied(vault))
}

func TestExpiredDelegateEvictedByGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lifetime := time.Minute
	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Query}), &lifetime)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.proxy.ProxyCall(ctx, user, withdraw())
	assert.ErrorIs(t, err, ErrCallerUnauthorized)

	_, ok, err := f.proxy.Delegation(owner, user)
	require.NoError(t, err)
	assert.False(t, ok, "expected expired delegation to be evicted")
}

func TestZeroDefaultLifetime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.proxy.SetDefaultLifetime(ctx, owner, 0))
	d, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Query}), nil)
	require.NoError(t, err)
	assert.Equal(t, t0, d.ExpiresAt)

	assert.False(t, f.proxy.IsLiveDelegate(user))
	_, ok, err := f.proxy.Delegation(owner, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Query}), nil)
	require.NoError(t, err)

	_, ok, err := f.proxy.Revoke(ctx, owner, user)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.proxy.ProxyCall(ctx, user, withdraw())
	assert.ErrorIs(t, err, ErrCallerUnauthorized)

	_, ok, err = f.proxy.Revoke(ctx, owner, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scope := withdrawScope(model.MethodSpec{Type: model.Update})
	_, err := f.proxy.Grant(ctx, owner, user, scope, nil)
	require.NoError(t, err)
	_, err = f.proxy.Grant(ctx, owner, stranger, scope, nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateAll))

	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)

	_, err = f.proxy.RemoveQueued(ctx, stranger, res.QueueHash)
	assert.ErrorIs(t, err, approval.ErrUnauthorized)

	removed, err := f.proxy.RemoveQueued(ctx, user, res.QueueHash)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.proxy.RemoveQueued(ctx, user, res.QueueHash)
	require.NoError(t, err)
	assert.False(t, removed)

	has, err := f.proxy.HasQueued(user, res.QueueHash)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestListResolvedForAndPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateAll))

	first, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)
	require.NotEqual(t, first.QueueHash, second.QueueHash)

	pending, err := f.proxy.Pending(owner)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = f.proxy.Confirm(ctx, owner, first.QueueHash, false)
	require.NoError(t, err)

	resolved, err := f.proxy.ListResolvedFor(owner, user)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, first.QueueHash, resolved[0].Hash)

	pending, err = f.proxy.Pending(owner)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.QueueHash, pending[0].Hash)
}

func TestQueuedRequestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scope := withdrawScope(model.MethodSpec{Type: model.Update})
	_, err := f.proxy.Grant(ctx, owner, user, scope, nil)
	require.NoError(t, err)
	_, err = f.proxy.Grant(ctx, owner, stranger, scope, nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateAll))

	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)

	e, err := f.proxy.QueuedRequest(user, res.QueueHash)
	require.NoError(t, err)
	assert.Equal(t, user, e.Requester)
	assert.Equal(t, "withdraw", e.Payload.Method)

	_, err = f.proxy.QueuedRequest(owner, res.QueueHash)
	assert.NoError(t, err)

	_, err = f.proxy.QueuedRequest(stranger, res.QueueHash)
	assert.ErrorIs(t, err, ErrCallerUnauthorized)

	_, err = f.proxy.QueuedRequest(user, "feed")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestForwardReleasesLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	f.transport.hook = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.proxy.ProxyCall(ctx, owner, withdraw())
		done <- err
	}()

	<-entered
	// the grant must complete while the forward is in flight
	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Query}), nil)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)
}

func TestExportImportState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateAll))
	require.NoError(t, f.proxy.SetDefaultLifetime(ctx, owner, time.Hour))
	_, err = f.proxy.AddDenied(ctx, owner, vault, "")
	require.NoError(t, err)
	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)

	state := f.proxy.ExportState()

	g := newFixture(t)
	require.NoError(t, g.proxy.ImportState(state))

	v, err := g.proxy.Settings(owner)
	require.NoError(t, err)
	assert.Equal(t, model.ValidateAll, v.Mode)
	assert.Equal(t, time.Hour, v.DefaultLifetime)
	assert.True(t, g.proxy.IsDenied(vault))
	assert.True(t, g.proxy.IsLiveDelegate(user))

	has, err := g.proxy.HasQueued(user, res.QueueHash)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestImportStateFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateAll))

	bad := f.proxy.ExportState()
	bad.Settings.Mode = model.ValidateUpdate
	bad.Delegations = append(bad.Delegations, bad.Delegations[0])

	err = f.proxy.ImportState(bad)
	require.Error(t, err)

	v, err := f.proxy.Settings(owner)
	require.NoError(t, err)
	assert.Equal(t, model.ValidateAll, v.Mode)
	assert.True(t, f.proxy.IsLiveDelegate(user))
}

func TestImportStateNil(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)

	require.Error(t, f.proxy.ImportState(nil))
	assert.True(t, f.proxy.IsLiveDelegate(user))
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestID(context.Background(), "req-1")

	_, err := f.proxy.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Update}), nil)
	require.NoError(t, err)
	require.NoError(t, f.proxy.SetValidationMode(ctx, owner, model.ValidateUpdate))
	res, err := f.proxy.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)
	_, err = f.proxy.Confirm(ctx, owner, res.QueueHash, true)
	require.NoError(t, err)

	v := audit.Verify(f.auditPath)
	require.True(t, v.Valid, v.Error)
	// grant, settings, decision, forward, resolution
	assert.Equal(t, 5, v.Lines)

	r, err := audit.Query(f.auditPath, audit.Filter{QueueHash: res.QueueHash})
	require.NoError(t, err)
	require.Len(t, r.Entries, 2)
	assert.Equal(t, audit.EventDecision, r.Entries[0].Type)
	assert.Equal(t, "require_approval", r.Entries[0].Decision)
	assert.Equal(t, audit.EventResolution, r.Entries[1].Type)
	assert.Equal(t, "approved", r.Entries[1].Decision)
	assert.Equal(t, "req-1", r.Entries[1].RequestID)
}

func TestDeniedErrorMessage(t *testing.T) {
	err := error(&DeniedError{Caller: user, Target: ledger, Method: "withdraw", Reason: "target denylisted"})
	var denied *DeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Contains(t, err.Error(), "target denylisted")
}

func TestDelegateRateLimit(t *testing.T) {
	clk := clock.Fake(t0)
	tr := &fakeTransport{ret: []byte{0x01}}
	p := New(Options{
		Self:      self,
		Owners:    identity.NewOwners(owner),
		Transport: tr,
		Clock:     clk,
		Limiter:   ratelimit.New(ratelimit.Config{Default: ratelimit.Limit{MaxRequests: 1, Window: time.Minute}}),
	})
	ctx := context.Background()

	_, err := p.Grant(ctx, owner, user, withdrawScope(model.MethodSpec{Type: model.Query}), nil)
	require.NoError(t, err)

	_, err = p.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)

	_, err = p.ProxyCall(ctx, user, withdraw())
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, ratelimit.RuleID, denied.Rule)

	// Owners are never limited.
	for i := 0; i < 3; i++ {
		_, err = p.ProxyCall(ctx, owner, withdraw())
		require.NoError(t, err)
	}

	clk.Advance(time.Minute)
	_, err = p.ProxyCall(ctx, user, withdraw())
	require.NoError(t, err)
	assert.Equal(t, 5, tr.count())
}
