package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrierRoundTrip(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := amqp.Table{}
	prop := propagation.TraceContext{}
	prop.Inject(ctx, HeaderCarrier(headers))

	assert.Contains(t, headers, "traceparent")

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), HeaderCarrier(headers)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanID, extracted.SpanID())
}

func TestHeaderCarrierIgnoresNonStringValues(t *testing.T) {
	c := HeaderCarrier{"x-retry": int32(3)}

	assert.Empty(t, c.Get("x-retry"))
	assert.Empty(t, c.Get("missing"))
	assert.ElementsMatch(t, []string{"x-retry"}, c.Keys())
}
