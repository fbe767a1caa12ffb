package browserpool

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxjlm/playwright-gateway/browserdriver"
	"github.com/zxjlm/playwright-gateway/browserdriver/fakedriver"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

func TestAcquireLazyCreatesOnce(t *testing.T) {
	var builds int
	factory := func(ctx context.Context, engine fetchtypes.Engine) (browserdriver.Engine, error) {
		builds++
		return fakedriver.New().Build(ctx, engine)
	}

	m := New(factory, prometheus.NewRegistry(), 0)

	_, err := m.Acquire(context.Background(), fetchtypes.EngineChromium)
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), fetchtypes.EngineChromium)
	require.NoError(t, err)

	assert.Equal(t, 1, builds)
	assert.True(t, m.IsAvailable(fetchtypes.EngineChromium))
	assert.False(t, m.IsAvailable(fetchtypes.EngineFirefox))
}

func TestReinitializeClosesThenRebuilds(t *testing.T) {
	var builds int
	factory := func(ctx context.Context, engine fetchtypes.Engine) (browserdriver.Engine, error) {
		builds++
		return fakedriver.New().Build(ctx, engine)
	}

	m := New(factory, prometheus.NewRegistry(), 0)
	_, err := m.Acquire(context.Background(), fetchtypes.EngineFirefox)
	require.NoError(t, err)

	_, err = m.Reinitialize(context.Background(), fetchtypes.EngineFirefox)
	require.NoError(t, err)

	assert.Equal(t, 2, builds)
}

func TestIsStaleDetectsKnownMarkers(t *testing.T) {
	assert.True(t, IsStale(&browserdriver.StaleError{Message: "browser has been closed"}))
	assert.True(t, IsStale(errors.New("the handler is closed unexpectedly")))
	assert.False(t, IsStale(errors.New("some other failure")))
	assert.False(t, IsStale(nil))
}

func TestEvictAllIdempotent(t *testing.T) {
	factory := func(ctx context.Context, engine fetchtypes.Engine) (browserdriver.Engine, error) {
		return fakedriver.New().Build(ctx, engine)
	}
	m := New(factory, prometheus.NewRegistry(), 0)
	_, _ = m.Acquire(context.Background(), fetchtypes.EngineWebkit)

	m.EvictAll(context.Background())
	m.EvictAll(context.Background())

	assert.False(t, m.IsAvailable(fetchtypes.EngineWebkit))
}
