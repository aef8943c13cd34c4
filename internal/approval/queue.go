// Package approval holds forwarding requests that wait for the owner's
// approval, addressed by a digest of who asked for what and when.
package approval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/callproxy/internal/clock"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

var (
	// ErrNotFound is returned for an unknown queue hash.
	ErrNotFound = errors.New("queued request not found")
	// ErrUnauthorized is returned when a caller other than the owner or
	// the original requester tries to remove an entry.
	ErrUnauthorized = errors.New("only the owner or the requester may remove a queued request")
)

// Forwarder executes an approved request.
type Forwarder interface {
	Forward(ctx context.Context, req model.CallRequest) ([]byte, error)
}

// Entry is one queued request.
type Entry struct {
	Hash        string
	Requester   principal.ID
	CreatedAt   time.Time
	Payload     model.CallRequest
	Disposition Disposition
	ResolvedAt  *time.Time
}

func (e Entry) clone() Entry {
	e.Payload = e.Payload.Clone()
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		e.ResolvedAt = &t
	}
	return e
}

// Summary is the listing view of an entry.
type Summary struct {
	Hash      string       `json:"hash"`
	Requester principal.ID `json:"requester"`
	CreatedAt time.Time    `json:"created_at"`
}

// HashRequest returns the lowercase hex SHA-256 of requester, target,
// method and the big-endian nanosecond timestamp, concatenated.
func HashRequest(requester, target principal.ID, method string, at time.Time) string {
	h := sha256.New()
	h.Write(requester.Bytes())
	h.Write(target.Bytes())
	h.Write([]byte(method))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))
	h.Write(ts[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Queue is the content-addressed approval queue. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]Entry
}

// New creates an empty Queue.
func New(clk clock.Clock) *Queue {
	return &Queue{clock: clk, entries: make(map[string]Entry)}
}

// Submit queues req on behalf of requester and returns its hash. If an
// entry with the same hash exists, it is left untouched and its hash is
// returned with created == false.
func (q *Queue) Submit(requester principal.ID, req model.CallRequest) (hash string, created bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	hash = HashRequest(requester, req.Target, req.Method, now)
	if _, exists := q.entries[hash]; exists {
		return hash, false
	}
	q.entries[hash] = Entry{
		Hash:        hash,
		Requester:   requester,
		CreatedAt:   now,
		Payload:     req.Clone(),
		Disposition: Pending{},
	}
	return hash, true
}

// Get returns a copy of the entry.
func (q *Queue) Get(hash string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[hash]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Has reports whether hash is queued.
func (q *Queue) Has(hash string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[hash]
	return ok
}

// Reply returns the entry's current disposition.
func (q *Queue) Reply(hash string) (Disposition, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[hash]
	if !ok {
		return nil, false
	}
	return e.Disposition, true
}

// Resolve records the owner's answer. On approval the payload is
// forwarded with the queue unlocked and the outcome, success or failure,
// is stored as Approved. Readers see Pending until the forward returns.
// Resolving an already resolved entry overwrites its disposition. An
// entry removed while its forward is in flight is not recreated.
func (q *Queue) Resolve(ctx context.Context, hash string, approve bool, fwd Forwarder) (Disposition, error) {
	q.mu.Lock()
	e, ok := q.entries[hash]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if !approve {
		now := q.clock.Now()
		e.Disposition = Rejected{}
		e.ResolvedAt = &now
		q.entries[hash] = e
		q.mu.Unlock()
		return e.Disposition, nil
	}
	payload := e.Payload.Clone()
	q.mu.Unlock()

	ret, err := fwd.Forward(ctx, payload)
	d := Approved{Outcome: model.OutcomeOf(ret, err)}

	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.entries[hash]; ok {
		now := q.clock.Now()
		cur.Disposition = d
		cur.ResolvedAt = &now
		q.entries[hash] = cur
	}
	return d, nil
}

// Remove deletes the entry if caller is the owner or its requester and
// reports whether it existed.
func (q *Queue) Remove(hash string, caller principal.ID, isOwner bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[hash]
	if !ok {
		return false, nil
	}
	if !isOwner && e.Requester != caller {
		return false, ErrUnauthorized
	}
	delete(q.entries, hash)
	return true, nil
}

// ListFor returns the resolved entries submitted by user, ordered by
// creation time and then hash.
func (q *Queue) ListFor(user principal.ID) []Summary {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Summary
	for _, e := range q.entries {
		if e.Requester == user && IsResolved(e.Disposition) {
			out = append(out, Summary{Hash: e.Hash, Requester: e.Requester, CreatedAt: e.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

// Pending returns copies of all unresolved entries, oldest first.
func (q *Queue) Pending() []Entry {
	return q.collect(func(e Entry) bool { return !IsResolved(e.Disposition) })
}

// Entries returns copies of all entries, oldest first.
func (q *Queue) Entries() []Entry {
	return q.collect(func(Entry) bool { return true })
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// PendingCount returns the number of unresolved entries.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if !IsResolved(e.Disposition) {
			n++
		}
	}
	return n
}

func (q *Queue) collect(keep func(Entry) bool) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Entry
	for _, e := range q.entries {
		if keep(e) {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

// Restore replaces all entries. Nothing is replaced on error.
func (q *Queue) Restore(entries []Entry) error {
	next := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Hash == "" {
			return errors.New("queued request without hash")
		}
		if _, dup := next[e.Hash]; dup {
			return fmt.Errorf("duplicate queued request %s", e.Hash)
		}
		if e.Disposition == nil {
			e.Disposition = Pending{}
		}
		next[e.Hash] = e.clone()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = next
	return nil
}
