package transport

import (
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// EchoHandler serves any method of a demo target:
//
//	test_call, test_call_key  reply "value"
//	test_query                reply "query"
//	echo                      reply with the argument bytes
//	reject                    fail with InvalidArgument
//	trap                      fail with Internal
//
// Any other method is Unimplemented.
func EchoHandler(logger *zap.Logger) grpc.StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ any, stream grpc.ServerStream) error {
		full, ok := grpc.MethodFromServerStream(stream)
		if !ok {
			return status.Error(codes.Internal, "method unknown")
		}
		method := full[strings.LastIndex(full, "/")+1:]

		var args []byte
		if err := stream.RecvMsg(&args); err != nil {
			return err
		}

		md, _ := metadata.FromIncomingContext(stream.Context())
		logger.Info("target call",
			zap.String("method", method),
			zap.Strings("caller", md.Get(MetaCaller)),
			zap.Strings("amount", md.Get(MetaAmount)),
			zap.String("args", hex.EncodeToString(args)),
		)

		var reply []byte
		switch method {
		case "test_call", "test_call_key":
			reply = []byte("value")
		case "test_query":
			reply = []byte("query")
		case "echo":
			reply = args
		case "reject":
			return status.Error(codes.InvalidArgument, "rejected by target")
		case "trap":
			return status.Error(codes.Internal, "target trapped")
		default:
			return status.Errorf(codes.Unimplemented, "method %q not found", method)
		}
		return stream.SendMsg(&reply)
	}
}

// NewEchoServer returns a gRPC server that answers every call with EchoHandler.
func NewEchoServer(logger *zap.Logger) *grpc.Server {
	return grpc.NewServer(grpc.UnknownServiceHandler(EchoHandler(logger)))
}
