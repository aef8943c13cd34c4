package callproxyv1

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "callproxy.v1.Proxy"

// ProxyServer is the server API of the proxy service.
type ProxyServer interface {
	Status(context.Context, *Empty) (*StatusResponse, error)
	Grant(context.Context, *GrantRequest) (*DelegationResponse, error)
	Revoke(context.Context, *DelegateRequest) (*DelegationResponse, error)
	GetDelegation(context.Context, *DelegateRequest) (*DelegationResponse, error)
	ListDelegations(context.Context, *Empty) (*ListDelegationsResponse, error)
	SweepExpired(context.Context, *Empty) (*SweepResponse, error)
	GetSettings(context.Context, *Empty) (*SettingsResponse, error)
	SetDefaultLifetime(context.Context, *SetDefaultLifetimeRequest) (*SettingsResponse, error)
	SetValidationMode(context.Context, *SetValidationModeRequest) (*SettingsResponse, error)
	AddDenied(context.Context, *DenylistRequest) (*DenylistResponse, error)
	RemoveDenied(context.Context, *DenylistRequest) (*DenylistResponse, error)
	IsDenied(context.Context, *DenylistRequest) (*DenylistResponse, error)
	ProxyCall(context.Context, *ProxyCallRequest) (*ProxyCallResponse, error)
	Confirm(context.Context, *ConfirmRequest) (*QueueReplyResponse, error)
	HasQueued(context.Context, *QueueRequest) (*HasQueuedResponse, error)
	QueueReply(context.Context, *QueueRequest) (*QueueReplyResponse, error)
	GetQueued(context.Context, *QueueRequest) (*QueuedEntry, error)
	RemoveQueued(context.Context, *QueueRequest) (*RemoveQueuedResponse, error)
	ListResolved(context.Context, *ListResolvedRequest) (*ListResolvedResponse, error)
	ListPending(context.Context, *Empty) (*ListPendingResponse, error)
}

// RegisterProxyServer registers srv on s.
func RegisterProxyServer(s grpc.ServiceRegistrar, srv ProxyServer) {
	s.RegisterService(&Proxy_ServiceDesc, srv)
}

// Proxy_ServiceDesc is the grpc.ServiceDesc of the proxy service.
var Proxy_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProxyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", ProxyServer.Status),
		unary("Grant", ProxyServer.Grant),
		unary("Revoke", ProxyServer.Revoke),
		unary("GetDelegation", ProxyServer.GetDelegation),
		unary("ListDelegations", ProxyServer.ListDelegations),
		unary("SweepExpired", ProxyServer.SweepExpired),
		unary("GetSettings", ProxyServer.GetSettings),
		unary("SetDefaultLifetime", ProxyServer.SetDefaultLifetime),
		unary("SetValidationMode", ProxyServer.SetValidationMode),
		unary("AddDenied", ProxyServer.AddDenied),
		unary("RemoveDenied", ProxyServer.RemoveDenied),
		unary("IsDenied", ProxyServer.IsDenied),
		unary("ProxyCall", ProxyServer.ProxyCall),
		unary("Confirm", ProxyServer.Confirm),
		unary("HasQueued", ProxyServer.HasQueued),
		unary("QueueReply", ProxyServer.QueueReply),
		unary("GetQueued", ProxyServer.GetQueued),
		unary("RemoveQueued", ProxyServer.RemoveQueued),
		unary("ListResolved", ProxyServer.ListResolved),
		unary("ListPending", ProxyServer.ListPending),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "callproxy/v1/proxy",
}

// FullMethod returns the gRPC path of a proxy method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ProxyServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ProxyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ProxyServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ProxyClient is the client API of the proxy service. Calls use the
// JSON content subtype.
type ProxyClient struct {
	cc grpc.ClientConnInterface
}

// NewProxyClient wraps cc.
func NewProxyClient(cc grpc.ClientConnInterface) *ProxyClient {
	return &ProxyClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ProxyClient) Status(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "Status", in, opts)
}

func (c *ProxyClient) Grant(ctx context.Context, in *GrantRequest, opts ...grpc.CallOption) (*DelegationResponse, error) {
	return invoke[DelegationResponse](ctx, c.cc, "Grant", in, opts)
}

func (c *ProxyClient) Revoke(ctx context.Context, in *DelegateRequest, opts ...grpc.CallOption) (*DelegationResponse, error) {
	return invoke[DelegationResponse](ctx, c.cc, "Revoke", in, opts)
}

func (c *ProxyClient) GetDelegation(ctx context.Context, in *DelegateRequest, opts ...grpc.CallOption) (*DelegationResponse, error) {
	return invoke[DelegationResponse](ctx, c.cc, "GetDelegation", in, opts)
}

func (c *ProxyClient) ListDelegations(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListDelegationsResponse, error) {
	return invoke[ListDelegationsResponse](ctx, c.cc, "ListDelegations", in, opts)
}

func (c *ProxyClient) SweepExpired(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*SweepResponse, error) {
	return invoke[SweepResponse](ctx, c.cc, "SweepExpired", in, opts)
}

func (c *ProxyClient) GetSettings(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*SettingsResponse, error) {
	return invoke[SettingsResponse](ctx, c.cc, "GetSettings", in, opts)
}

func (c *ProxyClient) SetDefaultLifetime(ctx context.Context, in *SetDefaultLifetimeRequest, opts ...grpc.CallOption) (*SettingsResponse, error) {
	return invoke[SettingsResponse](ctx, c.cc, "SetDefaultLifetime", in, opts)
}

func (c *ProxyClient) SetValidationMode(ctx context.Context, in *SetValidationModeRequest, opts ...grpc.CallOption) (*SettingsResponse, error) {
	return invoke[SettingsResponse](ctx, c.cc, "SetValidationMode", in, opts)
}

func (c *ProxyClient) AddDenied(ctx context.Context, in *DenylistRequest, opts ...grpc.CallOption) (*DenylistResponse, error) {
	return invoke[DenylistResponse](ctx, c.cc, "AddDenied", in, opts)
}

func (c *ProxyClient) RemoveDenied(ctx context.Context, in *DenylistRequest, opts ...grpc.CallOption) (*DenylistResponse, error) {
	return invoke[DenylistResponse](ctx, c.cc, "RemoveDenied", in, opts)
}

func (c *ProxyClient) IsDenied(ctx context.Context, in *DenylistRequest, opts ...grpc.CallOption) (*DenylistResponse, error) {
	return invoke[DenylistResponse](ctx, c.cc, "IsDenied", in, opts)
}

func (c *ProxyClient) ProxyCall(ctx context.Context, in *ProxyCallRequest, opts ...grpc.CallOption) (*ProxyCallResponse, error) {
	return invoke[ProxyCallResponse](ctx, c.cc, "ProxyCall", in, opts)
}

func (c *ProxyClient) Confirm(ctx context.Context, in *ConfirmRequest, opts ...grpc.CallOption) (*QueueReplyResponse, error) {
	return invoke[QueueReplyResponse](ctx, c.cc, "Confirm", in, opts)
}

func (c *ProxyClient) HasQueued(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*HasQueuedResponse, error) {
	return invoke[HasQueuedResponse](ctx, c.cc, "HasQueued", in, opts)
}

func (c *ProxyClient) QueueReply(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*QueueReplyResponse, error) {
	return invoke[QueueReplyResponse](ctx, c.cc, "QueueReply", in, opts)
}

func (c *ProxyClient) GetQueued(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*QueuedEntry, error) {
	return invoke[QueuedEntry](ctx, c.cc, "GetQueued", in, opts)
}

func (c *ProxyClient) RemoveQueued(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*RemoveQueuedResponse, error) {
	return invoke[RemoveQueuedResponse](ctx, c.cc, "RemoveQueued", in, opts)
}

func (c *ProxyClient) ListResolved(ctx context.Context, in *ListResolvedRequest, opts ...grpc.CallOption) (*ListResolvedResponse, error) {
	return invoke[ListResolvedResponse](ctx, c.cc, "ListResolved", in, opts)
}

func (c *ProxyClient) ListPending(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListPendingResponse, error) {
	return invoke[ListPendingResponse](ctx, c.cc, "ListPending", in, opts)
}
