package kafka

import (
	"context"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "event-type", Value: []byte("college.user.signed_up")}}
	carrier := headerCarrier{headers: &headers}

	assert.Equal(t, "college.user.signed_up", carrier.Get("event-type"))
	assert.Equal(t, "", carrier.Get("traceparent"))

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("event-type", "college.user.role_changed")

	assert.Len(t, headers, 2, "Set overwrites an existing key")
	assert.Equal(t, "college.user.role_changed", carrier.Get("event-type"))
	assert.Equal(t, []string{"event-type", "traceparent"}, carrier.Keys())
}

func TestPublish_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &memoryWriter{}
	p := newProducer(w, nil, nil, discardLogger())
	require.NoError(t, p.Publish(ctx, Topic("user", "signed_up"), mustEvent(t, "u-1")))

	parent, ok := headerValue(w.written[0], "traceparent")
	require.True(t, ok)
	assert.Contains(t, parent, traceID.String())

	// The propagated context must be readable by a consumer.
	extracted := otel.GetTextMapPropagator().Extract(context.Background(), headerCarrier{headers: &w.written[0].Headers})
	assert.Equal(t, traceID, trace.SpanContextFromContext(extracted).TraceID())
}
