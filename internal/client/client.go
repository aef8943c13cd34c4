// Package client is a thin wrapper over the proxy's gRPC service that
// identifies every call with a fixed caller principal.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	pb "github.com/ppiankov/callproxy/api/callproxy/v1"
	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/transport"
)

// DefaultTimeout bounds each RPC.
const DefaultTimeout = 5 * time.Second

// Client connects to a callproxy server.
type Client struct {
	conn    *grpc.ClientConn
	client  *pb.ProxyClient
	caller  principal.ID
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout. Forwarded calls may take longer
// than management RPCs.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a client that calls the server at addr as caller.
func New(addr string, caller principal.ID, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy server: %w", err)
	}
	c := &Client{
		conn:    conn,
		client:  pb.NewProxyClient(conn),
		caller:  caller,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Caller returns the principal the client calls as.
func (c *Client) Caller() principal.ID {
	return c.caller
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = metadata.AppendToOutgoingContext(ctx, transport.MetaCaller, c.caller.Text())
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Status returns the proxy identity and the caller's standing.
func (c *Client) Status(ctx context.Context) (*pb.StatusResponse, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.Status(ctx, &pb.Empty{})
}

// Grant delegates scope for lifetime; nil uses the server default.
func (c *Client) Grant(ctx context.Context, delegate principal.ID, scope []model.TargetScope, lifetime *time.Duration) (model.Delegation, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	req := &pb.GrantRequest{Delegate: delegate.Text(), Scope: pb.ScopeToWire(scope)}
	if lifetime != nil {
		req.Lifetime = lifetime.String()
	}
	resp, err := c.client.Grant(ctx, req)
	if err != nil {
		return model.Delegation{}, err
	}
	return resp.Delegation, nil
}

// Revoke removes delegate's delegation and reports whether one existed.
func (c *Client) Revoke(ctx context.Context, delegate principal.ID) (bool, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.Revoke(ctx, &pb.DelegateRequest{Delegate: delegate.Text()})
	if err != nil {
		return false, err
	}
	return resp.Found, nil
}

// Delegation looks up delegate's stored delegation.
func (c *Client) Delegation(ctx context.Context, delegate principal.ID) (model.Delegation, bool, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.GetDelegation(ctx, &pb.DelegateRequest{Delegate: delegate.Text()})
	if err != nil {
		return model.Delegation{}, false, err
	}
	return resp.Delegation, resp.Found, nil
}

// Delegations lists all stored delegations.
func (c *Client) Delegations(ctx context.Context) ([]model.Delegation, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.ListDelegations(ctx, &pb.Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Delegations, nil
}

// SweepExpired evicts expired delegations.
func (c *Client) SweepExpired(ctx context.Context) (int, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.SweepExpired(ctx, &pb.Empty{})
	if err != nil {
		return 0, err
	}
	return resp.Evicted, nil
}

// Settings returns the current settings.
func (c *Client) Settings(ctx context.Context) (*pb.SettingsResponse, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.GetSettings(ctx, &pb.Empty{})
}

// SetDefaultLifetime changes the default delegation lifetime.
func (c *Client) SetDefaultLifetime(ctx context.Context, d time.Duration) (*pb.SettingsResponse, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.SetDefaultLifetime(ctx, &pb.SetDefaultLifetimeRequest{Lifetime: d.String()})
}

// SetValidationMode changes the validation mode.
func (c *Client) SetValidationMode(ctx context.Context, mode model.ValidationMode) (*pb.SettingsResponse, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.SetValidationMode(ctx, &pb.SetValidationModeRequest{Mode: string(mode)})
}

// AddDenied denylists target and returns the stored label.
func (c *Client) AddDenied(ctx context.Context, target principal.ID, label string) (string, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.AddDenied(ctx, &pb.DenylistRequest{Target: target.Text(), Label: label})
	if err != nil {
		return "", err
	}
	return resp.Label, nil
}

// RemoveDenied removes target from the denylist and returns its label,
// or "" if it was not denylisted.
func (c *Client) RemoveDenied(ctx context.Context, target principal.ID) (string, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.RemoveDenied(ctx, &pb.DenylistRequest{Target: target.Text()})
	if err != nil {
		return "", err
	}
	return resp.Label, nil
}

// IsDenied reports whether target is denylisted.
func (c *Client) IsDenied(ctx context.Context, target principal.ID) (bool, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.IsDenied(ctx, &pb.DenylistRequest{Target: target.Text()})
	if err != nil {
		return false, err
	}
	return resp.Denied, nil
}

// Call asks the proxy to forward req.
func (c *Client) Call(ctx context.Context, req model.CallRequest) (*pb.ProxyCallResponse, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.ProxyCall(ctx, &pb.ProxyCallRequest{
		Target: req.Target.Text(),
		Method: req.Method,
		Args:   req.Args,
		Amount: req.Amount.String(),
	})
}

// Confirm approves or rejects a queued request.
func (c *Client) Confirm(ctx context.Context, hash string, approve bool) (approval.Disposition, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.Confirm(ctx, &pb.ConfirmRequest{Hash: hash, Approve: approve})
	if err != nil {
		return nil, err
	}
	return approval.FromRecord(resp.Disposition)
}

// HasQueued reports whether hash is in the queue.
func (c *Client) HasQueued(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.HasQueued(ctx, &pb.QueueRequest{Hash: hash})
	if err != nil {
		return false, err
	}
	return resp.Found, nil
}

// QueueReply returns the disposition of a queued request.
func (c *Client) QueueReply(ctx context.Context, hash string) (approval.Disposition, bool, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.QueueReply(ctx, &pb.QueueRequest{Hash: hash})
	if err != nil {
		return nil, false, err
	}
	if !resp.Found {
		return nil, false, nil
	}
	d, err := approval.FromRecord(resp.Disposition)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

// Queued returns a queued request.
func (c *Client) Queued(ctx context.Context, hash string) (*pb.QueuedEntry, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	return c.client.GetQueued(ctx, &pb.QueueRequest{Hash: hash})
}

// RemoveQueued deletes a queued request and reports whether it existed.
func (c *Client) RemoveQueued(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.RemoveQueued(ctx, &pb.QueueRequest{Hash: hash})
	if err != nil {
		return false, err
	}
	return resp.Removed, nil
}

// ListResolved lists user's answered requests.
func (c *Client) ListResolved(ctx context.Context, user principal.ID) ([]approval.Summary, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.ListResolved(ctx, &pb.ListResolvedRequest{User: user.Text()})
	if err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// ListPending lists unanswered requests.
func (c *Client) ListPending(ctx context.Context) ([]pb.QueuedEntry, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	resp, err := c.client.ListPending(ctx, &pb.Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Requests, nil
}
