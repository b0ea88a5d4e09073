package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/rpc"
)

// unaryRateLimit checks every unary call against rl, which is shared with
// the other transports and keyed by rpc method name. A nil rl admits all.
func unaryRateLimit(rl *rpc.RateLimiter, m metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := checkLimit(ctx, rl, m, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// streamRateLimit checks the setup of every stream against rl.
func streamRateLimit(rl *rpc.RateLimiter, m metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkLimit(ss.Context(), rl, m, info.FullMethod); err != nil {
			md, st := toStatus(err)
			ss.SetTrailer(md)
			return st
		}
		return handler(srv, ss)
	}
}

func checkLimit(ctx context.Context, rl *rpc.RateLimiter, m metrics.Metrics, fullMethod string) error {
	method := strings.TrimPrefix(fullMethod, "/"+ServiceName+"/")
	if err := rl.Allow(clientKey(ctx), method); err != nil {
		m.IncRateLimited(metrics.TransportGRPC)
		return err
	}
	return nil
}

// clientKey derives the rate limiting key of the calling peer.
func clientKey(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return rpc.ClientKey(p.Addr.String())
	}
	return rpc.ClientKey("")
}
