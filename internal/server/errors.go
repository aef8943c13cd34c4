package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/forward"
	"github.com/ppiankov/callproxy/internal/proxy"
	"github.com/ppiankov/callproxy/internal/ratelimit"
)

// toStatus maps proxy errors to gRPC status errors. Errors that already
// carry a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		denied  *proxy.DeniedError
		callErr *forward.CallError
	)
	switch {
	case errors.As(err, &denied):
		if denied.Rule == ratelimit.RuleID {
			return status.Error(codes.ResourceExhausted, err.Error())
		}
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, approval.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, approval.ErrUnauthorized), errors.Is(err, proxy.ErrCallerUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, forward.ErrSelfCall):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &callErr):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
