package server

import (
	"context"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/ppiankov/callproxy/api/callproxy/v1"
	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/delegation"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/settings"
)

// parsePrincipal parses a principal carried as text in a request field.
func parsePrincipal(field, text string) (principal.ID, error) {
	id, err := principal.Parse(text)
	if err != nil {
		return principal.ID{}, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	return id, nil
}

// Status reports the proxy's identity and the caller's standing.
func (s *Server) Status(ctx context.Context, _ *pb.Empty) (*pb.StatusResponse, error) {
	caller := CallerFromContext(ctx)
	return &pb.StatusResponse{
		Self:         s.proxy.Self(),
		Caller:       caller,
		IsOwner:      s.proxy.IsOwner(caller),
		LiveDelegate: s.proxy.IsLiveDelegate(caller),
	}, nil
}

// Grant implements the Grant RPC.
func (s *Server) Grant(ctx context.Context, req *pb.GrantRequest) (*pb.DelegationResponse, error) {
	delegate, err := parsePrincipal("delegate", req.Delegate)
	if err != nil {
		return nil, err
	}
	var lifetime *time.Duration
	if req.Lifetime != "" {
		d, err := time.ParseDuration(req.Lifetime)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid lifetime %q: %v", req.Lifetime, err)
		}
		lifetime = &d
	}
	if len(req.Scope) == 0 {
		return nil, status.Error(codes.InvalidArgument, "scope must name at least one target")
	}
	scope, err := pb.ScopeFromWire(req.Scope)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := delegation.NormalizeScope(scope); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	d, err := s.proxy.Grant(ctx, CallerFromContext(ctx), delegate, scope, lifetime)
	if err != nil {
		return nil, err
	}
	return &pb.DelegationResponse{Found: true, Delegation: d}, nil
}

// Revoke implements the Revoke RPC.
func (s *Server) Revoke(ctx context.Context, req *pb.DelegateRequest) (*pb.DelegationResponse, error) {
	delegate, err := parsePrincipal("delegate", req.Delegate)
	if err != nil {
		return nil, err
	}
	d, ok, err := s.proxy.Revoke(ctx, CallerFromContext(ctx), delegate)
	if err != nil {
		return nil, err
	}
	return &pb.DelegationResponse{Found: ok, Delegation: d}, nil
}

// GetDelegation implements the GetDelegation RPC.
func (s *Server) GetDelegation(ctx context.Context, req *pb.DelegateRequest) (*pb.DelegationResponse, error) {
	delegate, err := parsePrincipal("delegate", req.Delegate)
	if err != nil {
		return nil, err
	}
	d, ok, err := s.proxy.Delegation(CallerFromContext(ctx), delegate)
	if err != nil {
		return nil, err
	}
	return &pb.DelegationResponse{Found: ok, Delegation: d}, nil
}

// ListDelegations implements the ListDelegations RPC.
func (s *Server) ListDelegations(ctx context.Context, _ *pb.Empty) (*pb.ListDelegationsResponse, error) {
	list, err := s.proxy.Delegations(CallerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return &pb.ListDelegationsResponse{Delegations: list}, nil
}

// SweepExpired implements the SweepExpired RPC.
func (s *Server) SweepExpired(ctx context.Context, _ *pb.Empty) (*pb.SweepResponse, error) {
	n, err := s.proxy.SweepExpired(CallerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return &pb.SweepResponse{Evicted: n}, nil
}

// GetSettings implements the GetSettings RPC.
func (s *Server) GetSettings(ctx context.Context, _ *pb.Empty) (*pb.SettingsResponse, error) {
	return s.settingsResponse(ctx)
}

// SetDefaultLifetime implements the SetDefaultLifetime RPC.
func (s *Server) SetDefaultLifetime(ctx context.Context, req *pb.SetDefaultLifetimeRequest) (*pb.SettingsResponse, error) {
	d, err := time.ParseDuration(req.Lifetime)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid lifetime %q: %v", req.Lifetime, err)
	}
	if d < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "lifetime must not be negative: %s", d)
	}
	if err := s.proxy.SetDefaultLifetime(ctx, CallerFromContext(ctx), d); err != nil {
		return nil, err
	}
	return s.settingsResponse(ctx)
}

// SetValidationMode implements the SetValidationMode RPC.
func (s *Server) SetValidationMode(ctx context.Context, req *pb.SetValidationModeRequest) (*pb.SettingsResponse, error) {
	mode, err := model.ParseValidationMode(req.Mode)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.proxy.SetValidationMode(ctx, CallerFromContext(ctx), mode); err != nil {
		return nil, err
	}
	return s.settingsResponse(ctx)
}

func (s *Server) settingsResponse(ctx context.Context) (*pb.SettingsResponse, error) {
	v, err := s.proxy.Settings(CallerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return settingsToProto(v), nil
}

func settingsToProto(v settings.Values) *pb.SettingsResponse {
	resp := &pb.SettingsResponse{
		DefaultLifetime: v.DefaultLifetime.String(),
		Mode:            v.Mode,
	}
	for target, label := range v.Denylist {
		resp.Denylist = append(resp.Denylist, pb.DenyEntry{Target: target, Label: label})
	}
	sortDenyEntries(resp.Denylist)
	return resp
}

// AddDenied implements the AddDenied RPC.
func (s *Server) AddDenied(ctx context.Context, req *pb.DenylistRequest) (*pb.DenylistResponse, error) {
	target, err := parsePrincipal("target", req.Target)
	if err != nil {
		return nil, err
	}
	label, err := s.proxy.AddDenied(ctx, CallerFromContext(ctx), target, req.Label)
	if err != nil {
		return nil, err
	}
	return &pb.DenylistResponse{Target: target, Label: label, Denied: true}, nil
}

// RemoveDenied implements the RemoveDenied RPC.
func (s *Server) RemoveDenied(ctx context.Context, req *pb.DenylistRequest) (*pb.DenylistResponse, error) {
	target, err := parsePrincipal("target", req.Target)
	if err != nil {
		return nil, err
	}
	// Label is empty when the target was not denylisted.
	label, _, err := s.proxy.RemoveDenied(ctx, CallerFromContext(ctx), target)
	if err != nil {
		return nil, err
	}
	return &pb.DenylistResponse{Target: target, Label: label, Denied: false}, nil
}

// IsDenied implements the IsDenied RPC. Open to any caller.
func (s *Server) IsDenied(_ context.Context, req *pb.DenylistRequest) (*pb.DenylistResponse, error) {
	target, err := parsePrincipal("target", req.Target)
	if err != nil {
		return nil, err
	}
	return &pb.DenylistResponse{Target: target, Denied: s.proxy.IsDenied(target)}, nil
}

// ProxyCall implements the ProxyCall RPC.
func (s *Server) ProxyCall(ctx context.Context, req *pb.ProxyCallRequest) (*pb.ProxyCallResponse, error) {
	if req.Method == "" {
		return nil, status.Error(codes.InvalidArgument, "method is required")
	}
	call, err := req.CallRequest()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.proxy.ProxyCall(ctx, CallerFromContext(ctx), call)
	if err != nil {
		return nil, err
	}
	return &pb.ProxyCallResponse{Queued: res.Queued(), QueueHash: res.QueueHash, Return: res.Return}, nil
}

// Confirm implements the Confirm RPC.
func (s *Server) Confirm(ctx context.Context, req *pb.ConfirmRequest) (*pb.QueueReplyResponse, error) {
	d, err := s.proxy.Confirm(ctx, CallerFromContext(ctx), req.Hash, req.Approve)
	if err != nil {
		return nil, err
	}
	return &pb.QueueReplyResponse{Hash: req.Hash, Found: true, Disposition: approval.ToRecord(d)}, nil
}

// HasQueued implements the HasQueued RPC.
func (s *Server) HasQueued(ctx context.Context, req *pb.QueueRequest) (*pb.HasQueuedResponse, error) {
	ok, err := s.proxy.HasQueued(CallerFromContext(ctx), req.Hash)
	if err != nil {
		return nil, err
	}
	return &pb.HasQueuedResponse{Found: ok}, nil
}

// QueueReply implements the QueueReply RPC.
func (s *Server) QueueReply(ctx context.Context, req *pb.QueueRequest) (*pb.QueueReplyResponse, error) {
	d, ok, err := s.proxy.QueueReply(CallerFromContext(ctx), req.Hash)
	if err != nil {
		return nil, err
	}
	resp := &pb.QueueReplyResponse{Hash: req.Hash, Found: ok}
	if ok {
		resp.Disposition = approval.ToRecord(d)
	}
	return resp, nil
}

// GetQueued implements the GetQueued RPC.
func (s *Server) GetQueued(ctx context.Context, req *pb.QueueRequest) (*pb.QueuedEntry, error) {
	e, err := s.proxy.QueuedRequest(CallerFromContext(ctx), req.Hash)
	if err != nil {
		return nil, err
	}
	entry := pb.EntryFromQueue(e)
	return &entry, nil
}

// RemoveQueued implements the RemoveQueued RPC.
func (s *Server) RemoveQueued(ctx context.Context, req *pb.QueueRequest) (*pb.RemoveQueuedResponse, error) {
	removed, err := s.proxy.RemoveQueued(ctx, CallerFromContext(ctx), req.Hash)
	if err != nil {
		return nil, err
	}
	return &pb.RemoveQueuedResponse{Removed: removed}, nil
}

// ListResolved implements the ListResolved RPC.
func (s *Server) ListResolved(ctx context.Context, req *pb.ListResolvedRequest) (*pb.ListResolvedResponse, error) {
	user, err := parsePrincipal("user", req.User)
	if err != nil {
		return nil, err
	}
	list, err := s.proxy.ListResolvedFor(CallerFromContext(ctx), user)
	if err != nil {
		return nil, err
	}
	return &pb.ListResolvedResponse{Requests: list}, nil
}

// ListPending implements the ListPending RPC.
func (s *Server) ListPending(ctx context.Context, _ *pb.Empty) (*pb.ListPendingResponse, error) {
	list, err := s.proxy.Pending(CallerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	resp := &pb.ListPendingResponse{Requests: make([]pb.QueuedEntry, len(list))}
	for i, e := range list {
		resp.Requests[i] = pb.EntryFromQueue(e)
	}
	return resp, nil
}

func sortDenyEntries(entries []pb.DenyEntry) {
	slices.SortFunc(entries, func(a, b pb.DenyEntry) int {
		return a.Target.Compare(b.Target)
	})
}
