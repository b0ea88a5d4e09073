package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useTestProvider installs an always-sampling provider recording to memory
// and restores the previous globals when the test ends.
func useTestProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
		_ = provider.Shutdown(context.Background())
	})
	return exporter
}

func TestStartEnd(t *testing.T) {
	exporter := useTestProvider(t)

	_, span := Start(context.Background(), "rpc.status", AttrRPCMethod.String("status"))
	require.True(t, span.IsRecording())
	End(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "rpc.status", spans[0].Name)
	require.Equal(t, codes.Unset, spans[0].Status.Code)
	require.Contains(t, spans[0].Attributes, AttrRPCMethod.String("status"))
}

func TestEnd_RecordsError(t *testing.T) {
	exporter := useTestProvider(t)

	_, span := Start(context.Background(), "rpc.abci_query")
	End(span, errors.New("no such path"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status.Code)
	require.Equal(t, "no such path", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
}

func TestAnnotate(t *testing.T) {
	exporter := useTestProvider(t)

	// Nothing recording, nothing happens.
	Annotate(context.Background(), AttrQueryPath.String("/shell/epoch"))

	ctx, span := Start(context.Background(), "rpc.abci_query")
	Annotate(ctx, AttrQueryPath.String("/shell/epoch"), AttrQueryHeight.Int64(7))
	End(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Contains(t, spans[0].Attributes, AttrQueryPath.String("/shell/epoch"))
	require.Contains(t, spans[0].Attributes, AttrQueryHeight.Int64(7))
}

func TestInjectExtract(t *testing.T) {
	exporter := useTestProvider(t)

	ctx, parent := Start(context.Background(), "client")
	carrier := propagation.MapCarrier{}
	Inject(ctx, carrier)
	require.NotEmpty(t, carrier.Get("traceparent"))
	parent.End()

	remote := Extract(context.Background(), carrier)
	_, child := Start(remote, "server")
	child.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	require.Equal(t, spans[0].SpanContext.TraceID(), spans[1].SpanContext.TraceID())
	require.Equal(t, spans[0].SpanContext.SpanID(), spans[1].Parent.SpanID())
	require.True(t, trace.SpanContextFromContext(remote).IsRemote())
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()

	require.Equal(t, "queryberry", cfg.ServiceName)
	require.Equal(t, ExporterNone, cfg.Exporter)
	require.Equal(t, 0.1, cfg.SampleRate)
}

func TestNewProvider(t *testing.T) {
	for _, exporter := range []string{ExporterNone, ExporterStdout} {
		t.Run(exporter, func(t *testing.T) {
			provider, err := NewProvider(ProviderConfig{
				ServiceName: "test-service",
				Exporter:    exporter,
				SampleRate:  1.0,
			})
			require.NoError(t, err)
			require.NotNil(t, provider)
			require.NoError(t, provider.Shutdown(context.Background()))
		})
	}
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(ProviderConfig{
		ServiceName: "test-service",
		Exporter:    "jaeger",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown exporter")
}

func TestSetup(t *testing.T) {
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	shutdown, err := Setup(ProviderConfig{ServiceName: "test-service", Exporter: ExporterNone, SampleRate: 1})
	require.NoError(t, err)
	require.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	require.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
	require.NoError(t, shutdown(context.Background()))
}
