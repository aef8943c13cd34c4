package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/callproxy/internal/principal"
)

// MethodType classifies a target method by its effect on target state.
type MethodType string

const (
	Query          MethodType = "query"
	Update         MethodType = "update"
	CompositeQuery MethodType = "composite_query"
	OneWay         MethodType = "oneway"
)

// ParseMethodType maps a string to a MethodType. Accepts the
// upper-case spellings used by older clients ("CALL", "QUERY").
func ParseMethodType(s string) (MethodType, error) {
	switch strings.ToLower(s) {
	case "query":
		return Query, nil
	case "update", "call", "":
		return Update, nil
	case "composite_query", "compositequery", "composite":
		return CompositeQuery, nil
	case "oneway", "one_way":
		return OneWay, nil
	default:
		return "", fmt.Errorf("unknown method type %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MethodType) UnmarshalText(text []byte) error {
	parsed, err := ParseMethodType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ValidationMode selects which in-scope delegated calls additionally
// require owner approval.
type ValidationMode string

const (
	// ValidateAll queues every delegated call.
	ValidateAll ValidationMode = "ALL"
	// ValidateUpdate queues delegated calls to update methods only.
	ValidateUpdate ValidationMode = "UPDATE"
	// ValidateKey queues delegated calls to key operations only.
	ValidateKey ValidationMode = "KEY"
)

// DefaultValidationMode is used when no mode is configured.
const DefaultValidationMode = ValidateKey

// ParseValidationMode maps a string to a ValidationMode (case-insensitive).
func ParseValidationMode(s string) (ValidationMode, error) {
	switch ValidationMode(strings.ToUpper(s)) {
	case ValidateAll:
		return ValidateAll, nil
	case ValidateUpdate:
		return ValidateUpdate, nil
	case ValidateKey:
		return ValidateKey, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q (want ALL, UPDATE or KEY)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *ValidationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseValidationMode(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MethodSpec describes one method a delegate may invoke on a target.
type MethodSpec struct {
	Name         string     `yaml:"name" json:"name" cbor:"name"`
	Type         MethodType `yaml:"type" json:"type" cbor:"type"`
	KeyOperation bool       `yaml:"key_operation" json:"key_operation" cbor:"key_operation"`
}

// TargetScope is the set of methods a delegate may invoke on one target.
type TargetScope struct {
	Target  principal.ID          `yaml:"target" json:"target" cbor:"target"`
	Methods map[string]MethodSpec `yaml:"methods" json:"methods" cbor:"methods"`
}

// Method returns the descriptor for name, if present.
func (s TargetScope) Method(name string) (MethodSpec, bool) {
	m, ok := s.Methods[name]
	return m, ok
}

// Clone returns a deep copy.
func (s TargetScope) Clone() TargetScope {
	methods := make(map[string]MethodSpec, len(s.Methods))
	for k, v := range s.Methods {
		methods[k] = v
	}
	return TargetScope{Target: s.Target, Methods: methods}
}

// Delegation is the time-bounded authority granted to one delegate.
// Invariant: ExpiresAt is never before GrantedAt.
type Delegation struct {
	Delegate  principal.ID  `json:"delegate" cbor:"delegate"`
	Scope     []TargetScope `json:"scope" cbor:"scope"`
	GrantedAt time.Time     `json:"granted_at" cbor:"granted_at"`
	ExpiresAt time.Time     `json:"expires_at" cbor:"expires_at"`
}

// LiveAt reports whether the delegation is still valid at now.
func (d Delegation) LiveAt(now time.Time) bool {
	return d.ExpiresAt.After(now)
}

// Target returns the scope entry for target, if present.
func (d Delegation) Target(target principal.ID) (TargetScope, bool) {
	for _, s := range d.Scope {
		if s.Target == target {
			return s, true
		}
	}
	return TargetScope{}, false
}

// Clone returns a deep copy.
func (d Delegation) Clone() Delegation {
	scope := make([]TargetScope, len(d.Scope))
	for i, s := range d.Scope {
		scope[i] = s.Clone()
	}
	d.Scope = scope
	return d
}

// CallRequest is a request to forward one method call to a target.
type CallRequest struct {
	Target principal.ID `json:"target" cbor:"target"`
	Method string       `json:"method" cbor:"method"`
	Args   []byte       `json:"args" cbor:"args"`
	Amount Amount       `json:"amount" cbor:"amount"`
}

// Clone returns a copy that shares no memory with r.
func (r CallRequest) Clone() CallRequest {
	r.Args = append([]byte(nil), r.Args...)
	return r
}

// Outcome is the verbatim result of a forwarded call. Exactly one of
// Return and Err is meaningful: the call succeeded iff Err is empty.
type Outcome struct {
	Return []byte `json:"return,omitempty" cbor:"return,omitempty"`
	Err    string `json:"err,omitempty" cbor:"err,omitempty"`
}

// OutcomeOf builds an Outcome from a forward result.
func OutcomeOf(ret []byte, err error) Outcome {
	if err != nil {
		return Outcome{Err: err.Error()}
	}
	return Outcome{Return: ret}
}

// OK reports whether the forwarded call succeeded.
func (o Outcome) OK() bool {
	return o.Err == ""
}
