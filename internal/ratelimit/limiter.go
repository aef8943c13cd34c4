// Package ratelimit caps how many calls each delegate may push through
// the proxy per time window. Owners are never limited.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/callproxy/internal/principal"
)

// RuleID names the limit in denial decisions.
const RuleID = "ratelimit.delegate"

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Current  int
	Limit    int
	Reason   string
}

// Check compares the current count against the limit.
func Check(count int, limit Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d calls in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{Current: count, Limit: limit.MaxRequests}
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks fixed-window call counts per delegate. Safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[principal.ID]*window
}

// New creates a limiter for cfg.
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, windows: make(map[principal.ID]*window)}
}

// Snapshot returns the delegate's count in the current window, starting
// a new window if the previous one has expired.
func (l *Limiter) Snapshot(delegate principal.ID, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current(delegate, l.cfg.For(delegate), now).count
}

// Allow checks the delegate's limit and, when the call fits, counts it.
func (l *Limiter) Allow(delegate principal.ID, now time.Time) CheckResult {
	limit := l.cfg.For(delegate)
	if !limit.Enabled() {
		return CheckResult{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.current(delegate, limit, now)
	res := Check(w.count, limit)
	if !res.Exceeded {
		w.count++
	}
	return res
}

// Forget drops the delegate's window, e.g. after revocation.
func (l *Limiter) Forget(delegate principal.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, delegate)
}

func (l *Limiter) current(delegate principal.ID, limit Limit, now time.Time) *window {
	w, ok := l.windows[delegate]
	if !ok {
		w = &window{start: now}
		l.windows[delegate] = w
	}
	if now.Sub(w.start) >= limit.Window {
		w.start = now
		w.count = 0
	}
	return w
}
