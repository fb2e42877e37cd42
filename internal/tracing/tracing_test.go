package tracing

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(context.Background(), Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.Empty(t, W3CTraceparent(ctx), "no provider means no recording span")
}

func TestStartServerSpanContinuesTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)
	tracer = tp.Tracer(defaultServiceName)

	parent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	req := httptest.NewRequest("POST", "/v1/pdpm/aggregate", nil)
	req.Header.Set("traceparent", parent)

	ctx, span := StartServerSpan(req, "/v1/pdpm/aggregate")
	defer span.End()

	got := W3CTraceparent(ctx)
	require.NotEmpty(t, got)
	assert.Contains(t, got, "4bf92f3577b34da6a3ce929d0e0e4736")
	assert.NotContains(t, got, "00f067aa0ba902b7")
}
