// Package transport carries forwarded calls to their targets over gRPC.
//
// Argument and reply bytes travel unchanged using the "raw" content
// subtype. The proxy's principal and the attached amount travel as
// metadata. Target failures come back as *forward.RejectError.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/callproxy/internal/forward"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

// Metadata keys set on every forwarded call.
const (
	MetaCaller = "x-caller-principal"
	MetaTarget = "x-target-principal"
	MetaAmount = "x-transfer-amount"
)

// ServiceName is the gRPC service every target exposes its methods under.
const ServiceName = "callproxy.Target"

// FullMethod returns the gRPC method path for a target method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// GRPC is a forward.Transport that dials each target at its configured
// address and reuses the connection. Safe for concurrent use.
type GRPC struct {
	self     principal.ID
	dialOpts []grpc.DialOption

	mu      sync.Mutex
	targets map[principal.ID]string
	conns   map[principal.ID]*grpc.ClientConn
}

// New creates a GRPC transport. With no dial options, connections are
// made without TLS.
func New(self principal.ID, targets map[principal.ID]string, opts ...grpc.DialOption) *GRPC {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	g := &GRPC{
		self:     self,
		dialOpts: opts,
		conns:    make(map[principal.ID]*grpc.ClientConn),
	}
	g.SetTargets(targets)
	return g
}

// SetTargets replaces the target address book. Connections to targets
// whose address changed or that were removed are closed.
func (g *GRPC) SetTargets(targets map[principal.ID]string) {
	next := make(map[principal.ID]string, len(targets))
	for id, addr := range targets {
		next[id] = addr
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for id, conn := range g.conns {
		if next[id] != g.targets[id] {
			conn.Close()
			delete(g.conns, id)
		}
	}
	g.targets = next
}

// RawCall implements forward.Transport.
func (g *GRPC) RawCall(ctx context.Context, target principal.ID, method string, args []byte, amount model.Amount) ([]byte, error) {
	conn, err := g.conn(target)
	if err != nil {
		return nil, err
	}

	ctx = metadata.AppendToOutgoingContext(ctx,
		MetaCaller, g.self.Text(),
		MetaTarget, target.Text(),
		MetaAmount, amount.String(),
	)

	if args == nil {
		args = []byte{}
	}
	var reply []byte
	if err := conn.Invoke(ctx, FullMethod(method), &args, &reply, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, RejectFromStatus(err)
	}
	return reply, nil
}

func (g *GRPC) conn(target principal.ID) (*grpc.ClientConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if conn, ok := g.conns[target]; ok {
		return conn, nil
	}
	addr, ok := g.targets[target]
	if !ok {
		return nil, &forward.RejectError{
			Code:    forward.DestinationInvalid,
			Message: fmt.Sprintf("no address configured for target %s", target),
		}
	}
	conn, err := grpc.NewClient(addr, g.dialOpts...)
	if err != nil {
		return nil, &forward.RejectError{
			Code:    forward.DestinationInvalid,
			Message: fmt.Sprintf("dial %s: %v", addr, err),
		}
	}
	g.conns[target] = conn
	return conn, nil
}

// Close closes all cached connections.
func (g *GRPC) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for id, conn := range g.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(g.conns, id)
	}
	return errors.Join(errs...)
}

// RejectFromStatus maps a gRPC error to a reject code.
func RejectFromStatus(err error) *forward.RejectError {
	st, _ := status.FromError(err)
	var code forward.RejectCode
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		code = forward.SysTransient
	case codes.NotFound, codes.Unimplemented:
		code = forward.DestinationInvalid
	case codes.InvalidArgument, codes.PermissionDenied, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		code = forward.TargetReject
	case codes.Internal, codes.Unknown, codes.DataLoss:
		code = forward.TargetError
	default:
		code = forward.SysFatal
	}
	return &forward.RejectError{Code: code, Message: st.Message()}
}
