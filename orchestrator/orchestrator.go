// Package orchestrator is the request orchestrator: it owns
// the only admission-control semaphore in the gateway, probes the
// history cache before admitting a fetch, collapses concurrent
// identical fetches, and is the sole writer of processing_requests/
// waiting_requests and the only caller that appends a HistoryRecord.
// fetchengine.Engine must not acquire admission or persist history
// itself; this package is what calls it.
//
// Grounded on fetchengine.Engine's "state machine with no admission
// control, no history writes" shape, generalized one layer out: where
// Engine chains NavigateAttempt outcomes, Orchestrator chains
// cache probe -> admission -> dedup -> fetch -> bookkeeping. The
// Fetcher middleware type below is the RoundTripper-chain idiom from
// server/middleware.Middleware (func(http.RoundTripper) http.RoundTripper),
// generalized from wrapping an http.RoundTripper to wrapping a fetch
// operation, since the gateway's business routes are plain handlers and
// never reverse-proxy via http.RoundTripper.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
	"github.com/zxjlm/playwright-gateway/historycache"
	"github.com/zxjlm/playwright-gateway/metrics"
)

// Fetcher performs one fetch. fetchengine.Engine.FetchHTML/FetchScreenshot
// both satisfy this shape.
type Fetcher func(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error)

// Middleware wraps a Fetcher with cross-cutting behavior, generalizing the
// teacher's RoundTripper-chain idiom to the gateway's fetch path.
type Middleware func(Fetcher) Fetcher

// Chain composes middlewares left-to-right: Chain(a, b)(f) = a(b(f)).
func Chain(mws ...Middleware) Middleware {
	return func(next Fetcher) Fetcher {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

const defaultMaxConcurrentRequests = 10

// Orchestrator is the sole admission-control and history-persistence
// authority in the gateway.
type Orchestrator struct {
	history *historycache.Store
	html    Fetcher
	shot    Fetcher
	metrics *metrics.Registry
	log     *log.Helper

	sem     *semaphore.Weighted
	waiting int64
	flight  singleflight.Group
}

// New builds an Orchestrator. maxConcurrent <= 0 falls back to the
// default of 10.
func New(history *historycache.Store, html, screenshot Fetcher, reg *metrics.Registry, maxConcurrent int64, logger log.Logger) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentRequests
	}
	return &Orchestrator{
		history: history,
		html:    html,
		shot:    screenshot,
		metrics: reg,
		log:     log.NewHelper(logger),
		sem:     semaphore.NewWeighted(maxConcurrent),
	}
}

// FetchHTML runs the HTML fetch path through cache probe, admission and
// history bookkeeping.
func (o *Orchestrator) FetchHTML(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
	return o.run(ctx, req, "html", o.html)
}

// FetchScreenshot runs the screenshot fetch path through the same
// orchestration as FetchHTML.
func (o *Orchestrator) FetchScreenshot(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
	return o.run(ctx, req, "screenshot", o.shot)
}

func (o *Orchestrator) run(ctx context.Context, req *fetchtypes.FetchRequest, operation string, fetch Fetcher) (*fetchtypes.FetchResult, error) {
	o.metrics.ProcessingRequests.Inc()
	defer o.metrics.ProcessingRequests.Dec()

	if req.UseCache {
		rec, hit, err := o.history.Lookup(ctx, req.URL, req.Engine)
		if err == nil && hit {
			o.metrics.CacheOperationsTotal.WithLabelValues("hit").Inc()
			return &fetchtypes.FetchResult{
				HTML:     rec.ResponseBody,
				Status:   rec.Status,
				CacheHit: true,
			}, nil
		}
		o.metrics.CacheOperationsTotal.WithLabelValues("miss").Inc()
	}

	atomic.AddInt64(&o.waiting, 1)
	o.metrics.WaitingRequests.Set(float64(atomic.LoadInt64(&o.waiting)))
	err := o.sem.Acquire(ctx, 1)
	atomic.AddInt64(&o.waiting, -1)
	o.metrics.WaitingRequests.Set(float64(atomic.LoadInt64(&o.waiting)))
	if err != nil {
		// Admission never completed: no browser context was touched and no
		// HistoryRecord is written, matching its cancellation law.
		return nil, err
	}
	defer o.sem.Release(1)

	key := fmt.Sprintf("%s|%s|%s", operation, req.Engine, req.URL)
	resAny, err, _ := o.flight.Do(key, func() (any, error) {
		return o.doFetch(ctx, req, operation, fetch)
	})
	if err != nil {
		return nil, err
	}
	return resAny.(*fetchtypes.FetchResult), nil
}

func (o *Orchestrator) doFetch(ctx context.Context, req *fetchtypes.FetchRequest, operation string, fetch Fetcher) (*fetchtypes.FetchResult, error) {
	engine := string(req.Engine)
	o.metrics.BrowserOperationsTotal.WithLabelValues(engine, operation).Inc()

	start := time.Now()
	result, err := fetch(ctx, req)
	elapsed := time.Since(start)
	o.metrics.BrowserOperationDuration.WithLabelValues(engine, operation).Observe(elapsed.Seconds())

	if err != nil {
		o.metrics.BrowserOperationsStatus.WithLabelValues(engine, operation, "error").Inc()
		return nil, err
	}
	o.metrics.BrowserOperationsStatus.WithLabelValues(engine, operation, "ok").Inc()
	o.metrics.BrowserPageStatusCodes.WithLabelValues(engine, operation, fmt.Sprintf("%d", result.Status)).Inc()
	o.metrics.ObserveFetchComplete()

	// A cancelled fetch must not append a HistoryRecord;
	// processing_requests is still decremented by run's defer.
	if ctx.Err() != nil {
		return result, nil
	}

	rec := &fetchtypes.HistoryRecord{
		RequestID:     req.RequestID,
		URL:           req.URL,
		Engine:        req.Engine,
		Status:        result.Status,
		ResponseTimeS: elapsed.Seconds(),
		ResponseSize:  len(result.HTML) + len(result.ScreenshotB64),
		ResponseBody:  result.HTML,
	}
	if err := o.history.Append(ctx, rec); err != nil {
		o.log.Warnf("orchestrator: failed to append history record for %s: %v", req.URL, err)
	}

	return result, nil
}
