// Package tracing records OpenTelemetry spans for RPC calls and query
// dispatch, and propagates trace context across the HTTP, websocket and
// gRPC transports. Without Setup the global no-op provider is used and
// spans cost nothing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies queryberry spans.
const InstrumentationName = "github.com/blockberries/queryberry"

// Attribute keys.
const (
	AttrRPCMethod    = attribute.Key("rpc.method")
	AttrRPCTransport = attribute.Key("rpc.transport")
	AttrQueryPath    = attribute.Key("query.path")
	AttrQueryHeight  = attribute.Key("query.height")
	AttrQueryProve   = attribute.Key("query.prove")
	AttrQueryCode    = attribute.Key("query.code")
)

// Tracer returns the queryberry tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Start starts a span named name as a child of the span in ctx.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err, if any, and ends span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Annotate adds attributes to the span in ctx, if it is recording.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// Extract returns ctx carrying the remote span context found in carrier.
func Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// Inject writes the span context of ctx into carrier.
func Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}
