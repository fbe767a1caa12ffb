// Package proxypool holds the single process-wide active proxy, serving
// it out with a monotonic reuse counter and invalidating it on failure.
package proxypool

import (
	"context"
	"sync"
	"time"

	"github.com/omalloc/proxy/selector"
	"github.com/omalloc/proxy/selector/once"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

// Pool is the singleton proxy cache. All mutations are serialized by mu;
// get and invalidate are atomic with respect to each other.
type Pool struct {
	mu       sync.Mutex
	source   Source
	sel      selector.Selector
	current  *fetchtypes.CachedProxy

	reuseHist    *prometheus.HistogramVec
	currentGauge prometheus.Gauge
	usageTotal   *prometheus.CounterVec
	failuresCtr  prometheus.Counter
	switchTotal  *prometheus.CounterVec
}

// New builds a Pool around source, registering its metrics against reg.
func New(source Source, reg prometheus.Registerer) *Pool {
	p := &Pool{
		source: source,
		sel:    once.New(),
		reuseHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxy_reuse_count",
			Help:    "Distribution of reuse counts observed when a proxy is retired.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1 .. 1024
		}, []string{"proxy_type"}),
		currentGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_current_reuse_count",
			Help: "Reuse count of the currently active proxy.",
		}),
		usageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_usage_total",
			Help: "Total proxy acquisitions by proxy_type.",
		}, []string{"proxy_type"}),
		failuresCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_failures_total",
			Help: "Total proxy invalidations.",
		}),
		switchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_switch_total",
			Help: "Total proxy invalidations by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(p.reuseHist, p.currentGauge, p.usageTotal, p.failuresCtr, p.switchTotal)
	return p
}

// Get returns the active proxy URL, reusing the cached entry unless
// forceRefresh is set or there is no entry yet. An empty string with a nil
// error means "proceed without a proxy" (proxy_type=none, or acquisition
// failure treated as reported-but-non-fatal).
func (p *Pool) Get(ctx context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && !forceRefresh {
		p.current.ReuseCount++
		p.currentGauge.Set(float64(p.current.ReuseCount))
		return p.current.ServerURL, nil
	}

	if p.current != nil {
		p.recordReuseStatsLocked()
	}

	proxyURL, err := p.source.Fetch(ctx)
	if err != nil {
		log.Warnf("proxypool: acquisition failed: %v", err)
		p.current = nil
		p.currentGauge.Set(0)
		return "", nil
	}
	if proxyURL == "" {
		p.current = nil
		p.currentGauge.Set(0)
		return "", nil
	}

	node, err := selector.NewNode("tcp", proxyURL, selector.RawMetadata("proxy_type", string(p.source.Type())))
	if err == nil {
		p.sel.Apply([]selector.Node{node})
	}

	p.current = &fetchtypes.CachedProxy{
		ServerURL:  proxyURL,
		ProxyType:  p.source.Type(),
		ReuseCount: 1,
		AcquiredAt: time.Now(),
	}
	p.currentGauge.Set(1)
	p.usageTotal.WithLabelValues(string(p.source.Type())).Inc()
	log.Infof("proxypool: acquired new proxy %s", proxyURL)

	return proxyURL, nil
}

// Invalidate drops the current proxy so the next Get fetches a fresh one.
func (p *Pool) Invalidate(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}

	log.Warnf("proxypool: invalidating %s (reason=%s, reuse_count=%d)", p.current.ServerURL, reason, p.current.ReuseCount)
	p.recordReuseStatsLocked()
	p.failuresCtr.Inc()
	p.switchTotal.WithLabelValues(reason).Inc()
	p.current = nil
	p.currentGauge.Set(0)
}

// Shutdown emits final reuse-count telemetry for the active proxy, if any.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.recordReuseStatsLocked()
	p.current = nil
	p.currentGauge.Set(0)
}

func (p *Pool) recordReuseStatsLocked() {
	if p.current == nil || p.current.ReuseCount <= 0 {
		return
	}
	p.reuseHist.WithLabelValues(string(p.current.ProxyType)).Observe(float64(p.current.ReuseCount))
}

// Current returns the active proxy URL, or "" if none is cached. It does
// not mutate reuse_count.
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.ServerURL
}
