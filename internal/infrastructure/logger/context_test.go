package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext_FromContext(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	l := zap.New(core)

	ctx := WithContext(context.Background(), l)
	assert.Equal(t, l, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	// A context without a logger yields a usable no-op logger
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l.Info("should not panic")
}

func TestWithRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := zap.New(core)

	ctx, enriched := WithRequestID(context.Background(), l, "req-123")
	enriched.Info("hello")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-123", logs.All()[0].ContextMap()["request_id"])
}

func TestWithEventID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := zap.New(core)

	ctx, enriched := WithEventID(context.Background(), l, "wc-1042-1709280000")
	enriched.Info("reconciling")

	assert.Equal(t, "wc-1042-1709280000", GetEventID(ctx))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "wc-1042-1709280000", logs.All()[0].ContextMap()["event_id"])
}

func TestL_NoSpan(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx).Info("no span present")

	require.Equal(t, 1, logs.Len())
	_, hasTrace := logs.All()[0].ContextMap()["trace_id"]
	assert.False(t, hasTrace)
}
