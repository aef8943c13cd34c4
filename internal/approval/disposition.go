package approval

import (
	"fmt"

	"github.com/ppiankov/callproxy/internal/model"
)

// Disposition is the owner's answer to a queued request. It is one of
// Pending, Approved or Rejected; switch on the concrete type.
type Disposition interface {
	// Kind returns "pending", "approved" or "rejected".
	Kind() string
	isDisposition()
}

// Pending means the owner has not answered yet.
type Pending struct{}

// Approved means the owner approved and the request was forwarded.
// Outcome holds the forward's result, success or failure.
type Approved struct {
	Outcome model.Outcome
}

// Rejected means the owner refused the request. Nothing was forwarded.
type Rejected struct{}

func (Pending) Kind() string  { return "pending" }
func (Approved) Kind() string { return "approved" }
func (Rejected) Kind() string { return "rejected" }

func (Pending) isDisposition()  {}
func (Approved) isDisposition() {}
func (Rejected) isDisposition() {}

// IsResolved reports whether d is anything other than Pending.
func IsResolved(d Disposition) bool {
	_, pending := d.(Pending)
	return !pending
}

// DispositionRecord is the flat, serializable form of a Disposition.
type DispositionRecord struct {
	Kind    string         `json:"kind" cbor:"kind"`
	Outcome *model.Outcome `json:"outcome,omitempty" cbor:"outcome,omitempty"`
}

// ToRecord flattens d.
func ToRecord(d Disposition) DispositionRecord {
	switch v := d.(type) {
	case Approved:
		out := v.Outcome
		return DispositionRecord{Kind: v.Kind(), Outcome: &out}
	case Rejected:
		return DispositionRecord{Kind: v.Kind()}
	default:
		return DispositionRecord{Kind: Pending{}.Kind()}
	}
}

// FromRecord rebuilds a Disposition from its flat form.
func FromRecord(r DispositionRecord) (Disposition, error) {
	switch r.Kind {
	case "pending", "":
		return Pending{}, nil
	case "approved":
		if r.Outcome == nil {
			return nil, fmt.Errorf("approved disposition without outcome")
		}
		return Approved{Outcome: *r.Outcome}, nil
	case "rejected":
		return Rejected{}, nil
	default:
		return nil, fmt.Errorf("unknown disposition kind %q", r.Kind)
	}
}
