package historycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

func TestLookupHitWithinFreshnessWindow(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	rec := &fetchtypes.HistoryRecord{
		URL:          "https://example.com",
		Engine:       fetchtypes.EngineChromium,
		Status:       200,
		ResponseBody: "<html>hi</html>",
	}
	require.NoError(t, s.Append(context.Background(), rec))

	got, hit, err := s.Lookup(context.Background(), "https://example.com", fetchtypes.EngineChromium)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "<html>hi</html>", got.ResponseBody)
}

func TestLookupMissOutsideFreshnessWindow(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	rec := &fetchtypes.HistoryRecord{
		URL:       "https://example.com",
		Engine:    fetchtypes.EngineChromium,
		Status:    200,
		CreatedAt: time.Now().Add(-25 * time.Hour),
	}
	require.NoError(t, s.Append(context.Background(), rec))

	_, hit, err := s.Lookup(context.Background(), "https://example.com", fetchtypes.EngineChromium)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLookupMissOnFailureStatus(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(context.Background(), &fetchtypes.HistoryRecord{
		URL: "https://example.com", Engine: fetchtypes.EngineChromium, Status: 500,
	}))

	_, hit, err := s.Lookup(context.Background(), "https://example.com", fetchtypes.EngineChromium)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLookupPrefersMostRecent(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(context.Background(), &fetchtypes.HistoryRecord{
		URL: "https://example.com", Engine: fetchtypes.EngineChromium, Status: 200, ResponseBody: "old",
	}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Append(context.Background(), &fetchtypes.HistoryRecord{
		URL: "https://example.com", Engine: fetchtypes.EngineChromium, Status: 200, ResponseBody: "new",
	}))

	got, hit, err := s.Lookup(context.Background(), "https://example.com", fetchtypes.EngineChromium)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "new", got.ResponseBody)
}
