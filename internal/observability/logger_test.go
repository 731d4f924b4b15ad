package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogger_StampsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "test")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	log.InfoContext(ctx, "inside span")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
	assert.Equal(t, ServiceName, rec["service"])
}

func TestLogger_NoSpanNoIDs(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod").Info("plain")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "trace_id")
}

func TestLogger_DebugOnlyInDev(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod").Debug("hidden")
	assert.Zero(t, buf.Len())

	newLogger(&buf, "dev").Debug("shown")
	assert.NotZero(t, buf.Len())
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, samplerFor(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "root:TraceIDRatioBased{0.25}")
}
