// Package policy decides whether a forwarding request may run now,
// must wait for owner approval, or is refused.
package policy

import (
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

// Denylist reports targets the proxy never forwards to.
type Denylist interface {
	IsBlocked(target principal.ID) (bool, string)
}

// Scopes answers scope questions about a delegate. Implementations may
// evict expired delegations while answering.
type Scopes interface {
	CoversTarget(delegate, target principal.ID) bool
	MethodSpec(delegate, target principal.ID, method string) (model.MethodSpec, bool)
}

// Request is the input to Authorize.
type Request struct {
	Caller  principal.ID
	IsOwner bool
	Target  principal.ID
	Method  string
	Mode    model.ValidationMode
}

// Authorize evaluates a forwarding request.
//
// Evaluation order (must not be changed):
//  1. Denylist check, applies to the owner too
//  2. Owner bypass
//  3. Target scope
//  4. Method scope
//  5. Validation mode (ALL, UPDATE or KEY)
func Authorize(req Request, dl Denylist, scopes Scopes) Decision {
	// Step 1: Denylist check (hard block, highest priority)
	if dl != nil {
		if blocked, _ := dl.IsBlocked(req.Target); blocked {
			return Deny{Reason: ReasonDenylisted, RuleID: "denylist.block"}
		}
	}

	// Step 2: Owner bypasses scope and mode
	if req.IsOwner {
		return Allow{RuleID: "owner.bypass"}
	}

	// Step 3: Target scope
	if scopes == nil || !scopes.CoversTarget(req.Caller, req.Target) {
		return Deny{Reason: ReasonTargetScope, RuleID: "scope.target"}
	}

	// Step 4: Method scope
	spec, ok := scopes.MethodSpec(req.Caller, req.Target, req.Method)
	if !ok {
		return Deny{Reason: ReasonMethodScope, RuleID: "scope.method"}
	}

	// Step 5: Validation mode
	return ByMode(req.Mode, spec)
}

// ByMode applies the validation mode to an in-scope method.
// An unknown mode is treated as ALL (fail-closed).
func ByMode(mode model.ValidationMode, spec model.MethodSpec) Decision {
	switch mode {
	case model.ValidateUpdate:
		if spec.Type == model.Update {
			return RequireApproval{Mode: mode, RuleID: "mode.update"}
		}
		return Allow{RuleID: "mode.update"}
	case model.ValidateKey:
		if spec.KeyOperation {
			return RequireApproval{Mode: mode, RuleID: "mode.key"}
		}
		return Allow{RuleID: "mode.key"}
	default:
		return RequireApproval{Mode: model.ValidateAll, RuleID: "mode.all"}
	}
}
