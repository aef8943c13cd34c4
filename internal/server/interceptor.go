package server

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/proxy"
	"github.com/ppiankov/callproxy/internal/transport"
)

// MetaRequestID carries the request ID in both directions.
const MetaRequestID = "x-request-id"

type callerKey struct{}

// CallerFromContext returns the caller identified by the interceptor, or
// the anonymous principal.
func CallerFromContext(ctx context.Context) principal.ID {
	if id, ok := ctx.Value(callerKey{}).(principal.ID); ok {
		return id
	}
	return principal.Anonymous
}

// callerFromMetadata reads the caller principal. A missing header means
// an anonymous caller.
func callerFromMetadata(md metadata.MD) (principal.ID, error) {
	vals := md.Get(transport.MetaCaller)
	if len(vals) == 0 || vals[0] == "" {
		return principal.Anonymous, nil
	}
	return principal.Parse(vals[0])
}

func (s *Server) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	md, _ := metadata.FromIncomingContext(ctx)

	requestID := uuid.NewString()
	if vals := md.Get(MetaRequestID); len(vals) > 0 && vals[0] != "" {
		requestID = vals[0]
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(MetaRequestID, requestID))

	caller, err := callerFromMetadata(md)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", transport.MetaCaller, err)
	}

	ctx = context.WithValue(ctx, callerKey{}, caller)
	ctx = proxy.WithRequestID(ctx, requestID)

	resp, err := handler(ctx, req)
	err = toStatus(err)

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.String("request_id", requestID),
		zap.Stringer("caller", caller),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("rpc failed", append(fields, zap.Stringer("code", status.Code(err)), zap.Error(err))...)
		return nil, err
	}
	s.logger.Debug("rpc", fields...)
	return resp, nil
}
