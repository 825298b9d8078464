package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("gridlock")

	assert.Equal(t, "gridlock", cfg.ServiceName)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SamplingRate)
	assert.True(t, cfg.Enabled)
}

func TestInitDisabled(t *testing.T) {
	cfg := DefaultConfig("gridlock")
	cfg.Enabled = false

	provider, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, provider)

	assert.NotNil(t, provider.Tracer())
	assert.NoError(t, provider.Shutdown(context.Background()))
}
