// Package callproxyv1 defines the wire messages and gRPC service of the
// delegated-call proxy.
package callproxyv1

import (
	"time"

	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

type Empty struct{}

type StatusResponse struct {
	Self         principal.ID `json:"self"`
	Caller       principal.ID `json:"caller"`
	IsOwner      bool         `json:"is_owner"`
	LiveDelegate bool         `json:"live_delegate"`
}

// Request messages carry principals, modes and amounts as text. The
// handlers parse them so that bad input is reported as InvalidArgument
// instead of failing inside the codec.

// GrantRequest grants scope to delegate. An empty Lifetime uses the
// proxy's default lifetime.
type GrantRequest struct {
	Delegate string        `json:"delegate"`
	Scope    []TargetScope `json:"scope"`
	Lifetime string        `json:"lifetime,omitempty"`
}

// TargetScope is the wire form of model.TargetScope.
type TargetScope struct {
	Target  string                `json:"target"`
	Methods map[string]MethodSpec `json:"methods"`
}

// MethodSpec is the wire form of model.MethodSpec. An empty Type means
// update and an empty Name defaults to the map key.
type MethodSpec struct {
	Name         string `json:"name,omitempty"`
	Type         string `json:"type,omitempty"`
	KeyOperation bool   `json:"key_operation,omitempty"`
}

type DelegateRequest struct {
	Delegate string `json:"delegate"`
}

type DelegationResponse struct {
	Found      bool             `json:"found"`
	Delegation model.Delegation `json:"delegation"`
}

type ListDelegationsResponse struct {
	Delegations []model.Delegation `json:"delegations"`
}

type SweepResponse struct {
	Evicted int `json:"evicted"`
}

type SetDefaultLifetimeRequest struct {
	Lifetime string `json:"lifetime"`
}

type SetValidationModeRequest struct {
	Mode string `json:"mode"`
}

type SettingsResponse struct {
	DefaultLifetime string               `json:"default_lifetime"`
	Mode            model.ValidationMode `json:"mode"`
	Denylist        []DenyEntry          `json:"denylist"`
}

type DenyEntry struct {
	Target principal.ID `json:"target"`
	Label  string       `json:"label"`
}

type DenylistRequest struct {
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

type DenylistResponse struct {
	Target principal.ID `json:"target"`
	Label  string       `json:"label,omitempty"`
	Denied bool         `json:"denied"`
}

// ProxyCallRequest asks the proxy to forward a call. Amount is a decimal
// string; empty means zero.
type ProxyCallRequest struct {
	Target string `json:"target"`
	Method string `json:"method"`
	Args   []byte `json:"args,omitempty"`
	Amount string `json:"amount,omitempty"`
}

type ProxyCallResponse struct {
	Queued    bool   `json:"queued"`
	QueueHash string `json:"queue_hash,omitempty"`
	Return    []byte `json:"return,omitempty"`
}

type ConfirmRequest struct {
	Hash    string `json:"hash"`
	Approve bool   `json:"approve"`
}

type QueueRequest struct {
	Hash string `json:"hash"`
}

type HasQueuedResponse struct {
	Found bool `json:"found"`
}

type QueueReplyResponse struct {
	Hash        string                     `json:"hash"`
	Found       bool                       `json:"found"`
	Disposition approval.DispositionRecord `json:"disposition"`
}

type RemoveQueuedResponse struct {
	Removed bool `json:"removed"`
}

// QueuedEntry is a queued request as seen by clients.
type QueuedEntry struct {
	Hash        string                     `json:"hash"`
	Requester   principal.ID               `json:"requester"`
	CreatedAt   time.Time                  `json:"created_at"`
	Target      principal.ID               `json:"target"`
	Method      string                     `json:"method"`
	Args        []byte                     `json:"args,omitempty"`
	Amount      model.Amount               `json:"amount"`
	Disposition approval.DispositionRecord `json:"disposition"`
	ResolvedAt  *time.Time                 `json:"resolved_at,omitempty"`
}

// EntryFromQueue converts a queue entry to its wire form.
func EntryFromQueue(e approval.Entry) QueuedEntry {
	return QueuedEntry{
		Hash:        e.Hash,
		Requester:   e.Requester,
		CreatedAt:   e.CreatedAt,
		Target:      e.Payload.Target,
		Method:      e.Payload.Method,
		Args:        e.Payload.Args,
		Amount:      e.Payload.Amount,
		Disposition: approval.ToRecord(e.Disposition),
		ResolvedAt:  e.ResolvedAt,
	}
}

type ListResolvedRequest struct {
	User string `json:"user"`
}

type ListResolvedResponse struct {
	Requests []approval.Summary `json:"requests"`
}

type ListPendingResponse struct {
	Requests []QueuedEntry `json:"requests"`
}
