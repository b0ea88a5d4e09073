package grpc

import (
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/queryberry/rpc"
)

// Trailer keys carrying the RPC error of a failed call, so clients can
// rebuild the exact *rpc.RPCError the node returned. The -bin keys allow
// arbitrary bytes.
const (
	trailerCode    = "rpc-code"
	trailerMessage = "rpc-message-bin"
	trailerData    = "rpc-data-bin"
)

// statusCode maps an RPC error code to the closest gRPC status code.
func statusCode(code int) codes.Code {
	switch code {
	case rpc.CodeParseError, rpc.CodeInvalidRequest, rpc.CodeInvalidParams, rpc.CodeInvalidHeight:
		return codes.InvalidArgument
	case rpc.CodeMethodNotFound, rpc.CodeMethodUnsupported:
		return codes.Unimplemented
	case rpc.CodeTxNotFound, rpc.CodeBlockNotFound:
		return codes.NotFound
	case rpc.CodeRateLimited:
		return codes.ResourceExhausted
	case rpc.CodeBroadcastFailed, rpc.CodeSubscription:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// toStatus converts err into the trailer describing it and a gRPC status
// error. Status errors raised by interceptors pass through without a trailer.
func toStatus(err error) (metadata.MD, error) {
	if _, isRPC := rpc.IsRPCError(err); !isRPC {
		if _, isStatus := status.FromError(err); isStatus {
			return nil, err
		}
	}
	rpcErr := rpc.AsRPCError(err)
	md := metadata.Pairs(
		trailerCode, strconv.Itoa(rpcErr.Code),
		trailerMessage, rpcErr.Message,
	)
	if rpcErr.Data != "" {
		md.Set(trailerData, rpcErr.Data)
	}
	return md, status.Error(statusCode(rpcErr.Code), rpcErr.Error())
}

// fromStatus rebuilds the RPC error a node reported from the call trailer.
func fromStatus(md metadata.MD) (*rpc.RPCError, bool) {
	vals := md.Get(trailerCode)
	if len(vals) == 0 {
		return nil, false
	}
	code, err := strconv.Atoi(vals[0])
	if err != nil {
		return nil, false
	}
	rpcErr := &rpc.RPCError{Code: code}
	if v := md.Get(trailerMessage); len(v) > 0 {
		rpcErr.Message = v[0]
	}
	if v := md.Get(trailerData); len(v) > 0 {
		rpcErr.Data = v[0]
	}
	return rpcErr, true
}
