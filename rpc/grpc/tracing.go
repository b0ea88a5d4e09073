package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/blockberries/queryberry/tracing"
)

// metadataCarrier adapts gRPC metadata to the trace context propagator.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if vals := metadata.MD(c).Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// incomingTrace returns ctx carrying the caller's span context.
func incomingTrace(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	return tracing.Extract(ctx, metadataCarrier(md))
}

// outgoingTrace appends the span context of ctx to the outgoing metadata.
func outgoingTrace(ctx context.Context) context.Context {
	md := metadata.MD{}
	tracing.Inject(ctx, metadataCarrier(md))
	if len(md) == 0 {
		return ctx
	}
	pairs := make([]string, 0, 2*len(md))
	for k, vals := range md {
		for _, v := range vals {
			pairs = append(pairs, k, v)
		}
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
