// Package server exposes the proxy over gRPC.
package server

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	pb "github.com/ppiankov/callproxy/api/callproxy/v1"
	"github.com/ppiankov/callproxy/internal/identity"
	"github.com/ppiankov/callproxy/internal/proxy"
)

// Config holds gRPC server configuration.
type Config struct {
	Proxy         *proxy.Proxy
	Owners        *identity.Owners
	Logger        *zap.Logger
	ServerOptions []grpc.ServerOption
}

// Server implements the callproxy.v1.Proxy gRPC service.
type Server struct {
	proxy  *proxy.Proxy
	owners *identity.Owners
	logger *zap.Logger

	grpcServer *grpc.Server
}

// New creates a gRPC server around p.
func New(cfg Config) (*Server, error) {
	if cfg.Proxy == nil {
		return nil, errors.New("server: proxy is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		proxy:  cfg.Proxy,
		owners: cfg.Owners,
		logger: logger,
	}
	opts := append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.unaryInterceptor)}, cfg.ServerOptions...)
	s.grpcServer = grpc.NewServer(opts...)
	pb.RegisterProxyServer(s.grpcServer, s)
	return s, nil
}

// Serve listens on addr and serves until stopped.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on an existing listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("proxy server listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// GracefulStop stops accepting calls and waits for in-flight ones.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Stop closes all connections immediately.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// ReloadOwners re-reads the owners file. Called by the Reloader.
func (s *Server) ReloadOwners() error {
	if s.owners == nil {
		return nil
	}
	if err := s.owners.Reload(); err != nil {
		return fmt.Errorf("failed to reload owners: %w", err)
	}
	s.logger.Info("owners reloaded", zap.Int("owners", s.owners.Len()))
	return nil
}
