// Package forward executes authorized call requests through a transport
// under the proxy's own identity.
package forward

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

// ErrSelfCall is returned when a request targets the proxy itself.
var ErrSelfCall = errors.New("self-call rejected")

// RejectCode classifies a transport failure.
type RejectCode uint8

const (
	SysFatal           RejectCode = 1
	SysTransient       RejectCode = 2
	DestinationInvalid RejectCode = 3
	TargetReject       RejectCode = 4
	TargetError        RejectCode = 5
)

// RejectError is a failure reported by a Transport.
type RejectError struct {
	Code    RejectCode
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("call rejected (%d): %s", e.Code, e.Message)
}

// CallError is a transport failure as seen by callers of Forward.
type CallError struct {
	Reject *RejectError
}

func (e *CallError) Error() string {
	return fmt.Sprintf("An error happened during the call: %d: %s", e.Reject.Code, e.Reject.Message)
}

func (e *CallError) Unwrap() error {
	return e.Reject
}

// Transport sends raw call bytes to a target and returns its raw reply.
// Failures should be *RejectError; any other error is classified by Forward.
type Transport interface {
	RawCall(ctx context.Context, target principal.ID, method string, args []byte, amount model.Amount) ([]byte, error)
}

// Executor forwards requests. It never inspects argument or reply bytes.
type Executor struct {
	self      principal.ID
	transport Transport
}

// NewExecutor creates an Executor for the proxy identified by self.
func NewExecutor(self principal.ID, t Transport) *Executor {
	return &Executor{self: self, transport: t}
}

// Self returns the proxy's own principal.
func (e *Executor) Self() principal.ID {
	return e.self
}

// Forward sends req to its target. A request addressed to the proxy is
// refused with ErrSelfCall before the transport is touched.
func (e *Executor) Forward(ctx context.Context, req model.CallRequest) ([]byte, error) {
	if req.Target == e.self {
		return nil, fmt.Errorf("%w: target %s is this proxy", ErrSelfCall, req.Target)
	}

	ret, err := e.transport.RawCall(ctx, req.Target, req.Method, req.Args, req.Amount)
	if err != nil {
		return nil, &CallError{Reject: classify(err)}
	}
	return ret, nil
}

func classify(err error) *RejectError {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &RejectError{Code: SysTransient, Message: err.Error()}
	}
	return &RejectError{Code: SysFatal, Message: err.Error()}
}
