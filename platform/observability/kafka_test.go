package observability

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func withTestTracing(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()

	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	otel.SetTextMapPropagator(newPropagator())

	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	withTestTracing(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectKafkaHeaders(ctx, []kafka.Header{
		{Key: "content-type", Value: []byte("application/json")},
		{Key: "traceparent", Value: []byte("stale")},
	})

	var traceparents int
	for _, h := range headers {
		if h.Key == "traceparent" {
			traceparents++
			assert.NotEqual(t, "stale", string(h.Value))
		}
	}
	assert.Equal(t, 1, traceparents)

	got := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	require.True(t, got.IsValid())
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}

func TestTraceCarrier_RoundTrip(t *testing.T) {
	withTestTracing(t)

	assert.Nil(t, TraceCarrier(context.Background()))

	ctx, span := otel.Tracer("test").Start(context.Background(), "create-order")
	defer span.End()

	carrier := TraceCarrier(ctx)
	require.NotEmpty(t, carrier)

	restored := trace.SpanContextFromContext(ContextFromCarrier(context.Background(), carrier))
	assert.Equal(t, span.SpanContext().TraceID(), restored.TraceID())
}

func TestL_AddsTraceFields(t *testing.T) {
	withTestTracing(t)

	assert.Nil(t, TraceFields(context.Background()))

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	fields := TraceFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, span.SpanContext().TraceID().String(), fields[0].String)
}
