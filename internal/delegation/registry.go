// Package delegation tracks the time-limited, scoped authority the owner
// has granted to delegates.
package delegation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/callproxy/internal/clock"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

// Defaults supplies the lifetime of grants that do not name one.
type Defaults interface {
	DefaultLifetime() time.Duration
}

// Registry maps each delegate to its single current delegation.
// Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	clock    clock.Clock
	defaults Defaults
	records  map[principal.ID]model.Delegation
}

// New creates an empty Registry.
func New(clk clock.Clock, defaults Defaults) *Registry {
	return &Registry{
		clock:    clk,
		defaults: defaults,
		records:  make(map[principal.ID]model.Delegation),
	}
}

// Grant sweeps expired records, then stores a new delegation for
// delegate, replacing any previous one. A nil lifetime uses the default;
// a negative one is treated as zero.
func (r *Registry) Grant(delegate principal.ID, scope []model.TargetScope, lifetime *time.Duration) model.Delegation {
	ttl := r.defaults.DefaultLifetime()
	if lifetime != nil {
		ttl = *lifetime
	}
	if ttl < 0 {
		ttl = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.sweepLocked(now)

	d := model.Delegation{
		Delegate:  delegate,
		GrantedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	d.Scope = make([]model.TargetScope, len(scope))
	for i, s := range scope {
		d.Scope[i] = s.Clone()
	}
	r.records[delegate] = d
	return d.Clone()
}

// Lookup returns the stored record without checking expiry.
func (r *Registry) Lookup(delegate principal.ID) (model.Delegation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.records[delegate]
	if !ok {
		return model.Delegation{}, false
	}
	return d.Clone(), true
}

// IsLive reports whether delegate holds an unexpired delegation.
// Not side-effect free: an expired record is evicted before returning false.
func (r *Registry) IsLive(delegate principal.ID) bool {
	_, ok := r.live(delegate)
	return ok
}

// PeekLive is IsLive without eviction.
func (r *Registry) PeekLive(delegate principal.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.records[delegate]
	return ok && d.LiveAt(r.clock.Now())
}

// Revoke removes and returns the delegate's record.
func (r *Registry) Revoke(delegate principal.ID) (model.Delegation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.records[delegate]
	if !ok {
		return model.Delegation{}, false
	}
	delete(r.records, delegate)
	return d, true
}

// SweepExpired evicts every expired record and returns how many it removed.
func (r *Registry) SweepExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(r.clock.Now())
}

func (r *Registry) sweepLocked(now time.Time) int {
	n := 0
	for id, d := range r.records {
		if !d.LiveAt(now) {
			delete(r.records, id)
			n++
		}
	}
	return n
}

// live returns the delegate's record if it is unexpired, evicting it otherwise.
func (r *Registry) live(delegate principal.ID) (model.Delegation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.records[delegate]
	if !ok {
		return model.Delegation{}, false
	}
	if !d.LiveAt(r.clock.Now()) {
		delete(r.records, delegate)
		return model.Delegation{}, false
	}
	return d, true
}

// CoversTarget reports whether delegate is live and scoped to target.
func (r *Registry) CoversTarget(delegate, target principal.ID) bool {
	d, ok := r.live(delegate)
	if !ok {
		return false
	}
	_, ok = d.Target(target)
	return ok
}

// MethodSpec returns the scoped spec for method on target, if delegate
// is live and holds it.
func (r *Registry) MethodSpec(delegate, target principal.ID, method string) (model.MethodSpec, bool) {
	d, ok := r.live(delegate)
	if !ok {
		return model.MethodSpec{}, false
	}
	s, ok := d.Target(target)
	if !ok {
		return model.MethodSpec{}, false
	}
	return s.Method(method)
}

// CoversMethod reports whether delegate is live and scoped to method on target.
func (r *Registry) CoversMethod(delegate, target principal.ID, method string) bool {
	_, ok := r.MethodSpec(delegate, target, method)
	return ok
}

// IsKeyOperation reports whether the scoped method is flagged as a key operation.
func (r *Registry) IsKeyOperation(delegate, target principal.ID, method string) bool {
	spec, ok := r.MethodSpec(delegate, target, method)
	return ok && spec.KeyOperation
}

// Len returns the number of stored records, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns copies of all stored records ordered by delegate.
func (r *Registry) Records() []model.Delegation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Delegation, 0, len(r.records))
	for _, d := range r.records {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Delegate.Compare(out[j].Delegate) < 0
	})
	return out
}

// Restore replaces all records. Records that violate the validity
// window invariant are rejected and nothing is replaced.
func (r *Registry) Restore(records []model.Delegation) error {
	next := make(map[principal.ID]model.Delegation, len(records))
	for _, d := range records {
		if d.ExpiresAt.Before(d.GrantedAt) {
			return fmt.Errorf("delegation for %s expires before it was granted", d.Delegate)
		}
		if _, dup := next[d.Delegate]; dup {
			return fmt.Errorf("duplicate delegation for %s", d.Delegate)
		}
		next[d.Delegate] = d.Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = next
	return nil
}
