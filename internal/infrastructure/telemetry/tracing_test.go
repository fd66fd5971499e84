package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestStartConnectorSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartConnectorSpan(context.Background(), "coupa", "approve",
		telemetry.WithAttribute(telemetry.SpanAttrCardCount, 2))
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	assert.NotEmpty(t, telemetry.GetSpanID(ctx))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "coupa.approve", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String(telemetry.SpanAttrConnector, "coupa"))
	assert.Contains(t, spans[0].Attributes(), attribute.String(telemetry.SpanAttrOperation, "approve"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int(telemetry.SpanAttrCardCount, 2))
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "backend.call")
	telemetry.RecordError(span, errors.New("boom"))
	telemetry.RecordError(span, nil)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
}

func TestSetAttributesAndEvents(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "cards")
	telemetry.SetAttributes(span, "count", 3, 42, "ignored", "dangling")
	telemetry.AddEvent(span, "replayed", "action", "approve")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, []attribute.KeyValue{attribute.Int("count", 3)}, spans[0].Attributes())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "replayed", spans[0].Events()[0].Name)
}

func TestTraceIDs_NoSpan(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
	assert.Empty(t, telemetry.GetSpanID(context.Background()))
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:     false,
		ServiceName: "test-service",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.EnableSpanProfiles())
	assert.False(t, tp.IsSpanProfilesEnabled())
	assert.NoError(t, tp.ForceFlush(context.Background()))
	assert.NoError(t, tp.Shutdown(context.Background()))
	assert.Equal(t, "test-service", tp.GetConfig().ServiceName)
}
