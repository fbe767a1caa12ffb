// Package metrics houses the gateway-wide C7 instrument set:
// the counters, histograms and gauges that describe request traffic and
// browser-operation outcomes, on top of the already-instrumented
// proxypool/browserpool/fetchengine packages. Grounded on proxypool.Pool
// and browserpool.Manager's "build a *prometheus.XxxVec in New, register
// against a passed-in Registerer" pattern.
package metrics

import (
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every C7 instrument not already owned by proxypool,
// browserpool or fetchengine.
type Registry struct {
	APIRequestsTotal   *prometheus.CounterVec
	APIErrorsTotal     *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIRequestSize     *prometheus.HistogramVec
	APIResponseSize    *prometheus.HistogramVec
	APIRequestsInFlight *prometheus.GaugeVec

	BrowserOperationsTotal       *prometheus.CounterVec
	BrowserOperationsStatus     *prometheus.CounterVec
	BrowserPageStatusCodes      *prometheus.CounterVec
	BrowserOperationDuration    *prometheus.HistogramVec

	CacheOperationsTotal *prometheus.CounterVec

	WaitingRequests    prometheus.Gauge
	ProcessingRequests prometheus.Gauge

	rps *ratecounter.RateCounter
}

// New builds a Registry and registers every instrument against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests served, by method, path and status code.",
		}, []string{"method", "path", "status_code"}),
		APIErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total request-handling errors, by error type.",
		}, []string{"error_type"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "End-to-end HTTP request duration.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "path"}),
		APIRequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_size_bytes",
			Help:    "HTTP request body size.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "path"}),
		APIResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_response_size_bytes",
			Help:    "HTTP response body size.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}, []string{"method", "path"}),
		APIRequestsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_requests_in_flight",
			Help: "In-flight HTTP requests, by method and path.",
		}, []string{"method", "path"}),

		BrowserOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_operations_total",
			Help: "Total browser operations attempted, by browser_type and operation.",
		}, []string{"browser_type", "operation"}),
		BrowserOperationsStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_operations_status_total",
			Help: "Total browser operations, by browser_type, operation and outcome status.",
		}, []string{"browser_type", "operation", "status"}),
		BrowserPageStatusCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_page_status_codes_total",
			Help: "Total browser operations, by browser_type, operation and page status code.",
		}, []string{"browser_type", "operation", "page_status_code"}),
		BrowserOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "browser_operation_duration_seconds",
			Help:    "Browser operation duration.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"browser_type", "operation"}),

		CacheOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total history-cache probes, by outcome status (hit, miss).",
		}, []string{"status"}),

		WaitingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waiting_requests",
			Help: "Requests queued behind the admission semaphore.",
		}),
		ProcessingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "processing_requests",
			Help: "Requests currently being handled by the orchestrator, including cache probes and requests waiting for admission.",
		}),

		rps: ratecounter.NewRateCounter(60 * time.Second),
	}

	reg.MustRegister(
		r.APIRequestsTotal, r.APIErrorsTotal, r.APIRequestDuration, r.APIRequestSize, r.APIResponseSize,
		r.APIRequestsInFlight, r.BrowserOperationsTotal, r.BrowserOperationsStatus, r.BrowserPageStatusCodes,
		r.BrowserOperationDuration, r.CacheOperationsTotal, r.WaitingRequests, r.ProcessingRequests,
	)
	return r
}

// ObserveFetchComplete marks one completed fetch for the requests-per-second
// gauge surfaced at /version.
func (r *Registry) ObserveFetchComplete() {
	r.rps.Incr(1)
}

// RequestsPerSecond is the fetch completion rate over the trailing 60s.
func (r *Registry) RequestsPerSecond() float64 {
	return float64(r.rps.Rate()) / 60
}
