package policy

import "github.com/ppiankov/callproxy/internal/model"

// Decision is the outcome of Authorize. It is one of Allow, Deny or
// RequireApproval; switch on the concrete type.
type Decision interface {
	// Kind returns "allow", "deny" or "require_approval".
	Kind() string
	// Rule names the evaluation step that produced the decision.
	Rule() string
	isDecision()
}

// Allow lets the call be forwarded immediately.
type Allow struct {
	RuleID string
}

// Deny rejects the call. It is fatal at the boundary: nothing is queued
// or forwarded.
type Deny struct {
	Reason string
	RuleID string
}

// RequireApproval queues the call until the owner resolves it.
type RequireApproval struct {
	Mode   model.ValidationMode
	RuleID string
}

func (Allow) Kind() string           { return "allow" }
func (Deny) Kind() string            { return "deny" }
func (RequireApproval) Kind() string { return "require_approval" }

func (a Allow) Rule() string           { return a.RuleID }
func (d Deny) Rule() string            { return d.RuleID }
func (r RequireApproval) Rule() string { return r.RuleID }

func (Allow) isDecision()           {}
func (Deny) isDecision()            {}
func (RequireApproval) isDecision() {}

// Deny reasons.
const (
	ReasonDenylisted  = "target denylisted"
	ReasonTargetScope = "target not in authorized scope"
	ReasonMethodScope = "method not in authorized scope"
)
