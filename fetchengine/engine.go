// Package fetchengine is the fetch state machine: it turns one
// FetchRequest into exactly one FetchResult across interacting timeout,
// proxy-exception and proxy-page failure modes, bounded by
// fetchtypes.MaxProxyRetryAttempts navigations. Grounded on
// original_source/apis/utils.py's single try/except ladder, re-expressed as
// a discriminated outcome instead of nested exception handlers.
//
// Engine owns no admission control and writes no history; both are the
// orchestrator's job.
package fetchengine

import (
	"context"
	"encoding/base64"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zxjlm/playwright-gateway/browserpool"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
	"github.com/zxjlm/playwright-gateway/proxypool"
)

// Engine drives fetches against a shared browser pool and proxy pool.
type Engine struct {
	browsers *browserpool.Manager
	proxies  *proxypool.Pool

	proxyRetryTotal *prometheus.CounterVec
}

// New builds an Engine over the given browser and proxy pools.
func New(browsers *browserpool.Manager, proxies *proxypool.Pool, reg prometheus.Registerer) *Engine {
	e := &Engine{
		browsers: browsers,
		proxies:  proxies,
		proxyRetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_retry_total",
			Help: "Total proxy-triggered navigation retries, by attempt number.",
		}, []string{"attempt"}),
	}
	reg.MustRegister(e.proxyRetryTotal)
	return e
}

// FetchHTML runs the state machine and returns an HTML result.
func (e *Engine) FetchHTML(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
	return e.run(ctx, req, false)
}

// FetchScreenshot runs the state machine and returns a screenshot result.
func (e *Engine) FetchScreenshot(ctx context.Context, req *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error) {
	return e.run(ctx, req, true)
}

// run is the NavigateAttempt loop: it dispatches each attempt's outcome,
// invalidating and re-acquiring a proxy on proxy_exception/proxy_page and
// returning immediately on success, timeout, or a fatal error.
func (e *Engine) run(ctx context.Context, req *fetchtypes.FetchRequest, wantScreenshot bool) (*fetchtypes.FetchResult, error) {
	req = req.Clone()
	forceNewProxy := false

	for attempt := 1; attempt <= fetchtypes.MaxProxyRetryAttempts; attempt++ {
		proxyURL, err := e.proxies.Get(ctx, forceNewProxy)
		if err != nil {
			// proxy_acquisition is reported but non-fatal: proceed
			// without a proxy rather than failing the fetch.
			proxyURL = ""
		}
		forceNewProxy = false

		out := e.attempt(ctx, req, wantScreenshot, proxyURL)

		switch out.oc.kind {
		case outcomeSuccess, outcomeTimeout, outcomeFatal:
			return out.result, nil

		case outcomeProxyException, outcomeProxyPage:
			e.proxyRetryTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
			e.proxies.Invalidate(out.oc.reason)
			forceNewProxy = true

			if attempt == fetchtypes.MaxProxyRetryAttempts {
				status := fetchtypes.StatusProxyExceptionExhaust
				if out.oc.kind == outcomeProxyPage {
					status = fetchtypes.StatusProxyPageExhaust
				}
				return &fetchtypes.FetchResult{Status: status, Error: getError(status)}, nil
			}
		}
	}

	// Unreachable: the loop above always returns by its final iteration.
	status := fetchtypes.StatusProxyExceptionExhaust
	return &fetchtypes.FetchResult{Status: status, Error: getError(status)}, nil
}

func encodeScreenshot(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
