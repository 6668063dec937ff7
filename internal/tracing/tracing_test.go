package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_TRACING_ENABLED", "false")

	shutdown, err := Init(context.Background(), "transit-client")
	require.NoError(t, err)
	assert.NotPanics(t, shutdown)
}

func TestIsTrue(t *testing.T) {
	for _, s := range []string{"1", "true", " YES ", "on"} {
		assert.True(t, isTrue(s), s)
	}
	for _, s := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTrue(s), s)
	}
}

func TestNewExporter_Protocols(t *testing.T) {
	ctx := context.Background()
	for _, p := range []string{ProtocolGRPC, ProtocolHTTP, "unknown"} {
		exp, err := newExporter(ctx, p, "http://127.0.0.1:1")
		require.NoError(t, err, p)
		require.NoError(t, exp.Shutdown(ctx), p)
	}
}
