package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
	"github.com/zxjlm/playwright-gateway/historycache"
	"github.com/zxjlm/playwright-gateway/metrics"
)

func newTestOrchestrator(t *testing.T, html, shot Fetcher, maxConcurrent int64) (*Orchestrator, *historycache.Store) {
	t.Helper()
	store, err := historycache.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := metrics.New(prometheus.NewRegistry())
	return New(store, html, shot, reg, maxConcurrent, log.GetLogger()), store
}

func baseRequest() *fetchtypes.FetchRequest {
	return &fetchtypes.FetchRequest{
		URL:       "https://example.com",
		Engine:    fetchtypes.EngineChromium,
		TimeoutMS: 30000,
		WaitUntil: fetchtypes.WaitDOMContentLoaded,
	}
}

// A cache hit must short-circuit before admission or the fetcher run: no
// browser context is touched and no new HistoryRecord is written.
func TestFetchHTMLCacheHit(t *testing.T) {
	store, err := historycache.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Append(context.Background(), &fetchtypes.HistoryRecord{
		URL:          "https://example.com",
		Engine:       fetchtypes.EngineChromium,
		Status:       200,
		ResponseBody: "<html>cached</html>",
	}))

	calls := 0
	html := func(context.Context, *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
		calls++
		return &fetchtypes.FetchResult{Status: 200, HTML: "<html>fresh</html>"}, nil
	}

	reg := metrics.New(prometheus.NewRegistry())
	o := New(store, html, html, reg, 10, log.GetLogger())

	req := baseRequest()
	req.UseCache = true
	res, err := o.FetchHTML(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, "<html>cached</html>", res.HTML)
	assert.Zero(t, calls)
}

// When the cache misses, the fetcher runs and a HistoryRecord is appended.
func TestFetchHTMLCacheMissAppendsHistory(t *testing.T) {
	html := func(context.Context, *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
		return &fetchtypes.FetchResult{Status: 200, HTML: "<html>new</html>"}, nil
	}
	o, store := newTestOrchestrator(t, html, html, 10)

	req := baseRequest()
	req.UseCache = true
	res, err := o.FetchHTML(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)

	_, hit, err := store.Lookup(context.Background(), req.URL, req.Engine)
	require.NoError(t, err)
	assert.True(t, hit)
}

// The admission semaphore bounds concurrency to maxConcurrent: with a
// capacity of 1 and two requests in flight, the second must not start its
// fetch until the first releases.
func TestAdmissionSemaphoreBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	maxSeen := 0
	release := make(chan struct{})

	html := func(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		return &fetchtypes.FetchResult{Status: 200}, nil
	}
	o, _ := newTestOrchestrator(t, html, html, 1)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := baseRequest()
			req.URL = req.URL + "/distinct-path-" + string(rune('a'+n))
			_, _ = o.FetchHTML(context.Background(), req)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, maxSeen, 1)
	close(release)
	wg.Wait()
}

// Concurrent identical fetches collapse into a single underlying call.
func TestSingleflightCollapsesIdenticalFetches(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	start := make(chan struct{})

	html := func(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-start
		return &fetchtypes.FetchResult{Status: 200, HTML: "<html>x</html>"}, nil
	}
	o, _ := newTestOrchestrator(t, html, html, 10)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.FetchHTML(context.Background(), baseRequest())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), calls)
}

// processing_requests must be decremented even when the context is
// cancelled while waiting on admission, and no HistoryRecord is written.
func TestCancelledFetchDoesNotAppendHistory(t *testing.T) {
	blocker := func(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	o, store := newTestOrchestrator(t, blocker, blocker, 1)

	// Occupy the only admission slot so the second request blocks.
	occupied := make(chan struct{})
	release := make(chan struct{})
	occupy := func(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
		close(occupied)
		<-release
		return &fetchtypes.FetchResult{Status: 200}, nil
	}
	o.html = occupy

	go func() {
		req := baseRequest()
		req.URL = "https://example.com/occupy"
		_, _ = o.FetchHTML(context.Background(), req)
	}()
	<-occupied

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		req := baseRequest()
		req.URL = "https://example.com/blocked"
		_, err := o.FetchHTML(ctx, req)
		assert.Error(t, err)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
	// Only the occupying request is still being processed.
	assert.Equal(t, 1.0, testutil.ToFloat64(o.metrics.ProcessingRequests))
	close(release)

	_, hit, err := store.Lookup(context.Background(), "https://example.com/blocked", fetchtypes.EngineChromium)
	require.NoError(t, err)
	assert.False(t, hit)
}
