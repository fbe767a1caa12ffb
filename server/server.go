// Package server wires the gateway's HTTP surface: control-plane routes
// (pprof, /version, /metrics, health) and the business /service/* routes
// share one mux: unlike a multi-tenant CDN (whose control plane is
// Host-gated away from an arbitrary-Host data plane), the gateway has a
// single data-plane surface with no Host dimension to split on.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pluginv1 "github.com/zxjlm/playwright-gateway/api/defined/v1/plugin"
	"github.com/zxjlm/playwright-gateway/browserpool"
	"github.com/zxjlm/playwright-gateway/conf"
	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/contrib/transport"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
	"github.com/zxjlm/playwright-gateway/metrics"
	"github.com/zxjlm/playwright-gateway/orchestrator"
	xhttp "github.com/zxjlm/playwright-gateway/pkg/x/http"
	"github.com/zxjlm/playwright-gateway/pkg/x/runtime"
	"github.com/zxjlm/playwright-gateway/server/mod"
)

// HTTPServer is the gateway's single HTTP listener.
type HTTPServer struct {
	*http.Server

	plugins []pluginv1.Plugin

	flip         *tableflip.Upgrader
	config       *conf.Bootstrap
	serverConfig *conf.Server
	listener     net.Listener

	orchestrator *orchestrator.Orchestrator
	browsers     *browserpool.Manager
	metrics      *metrics.Registry
}

// NewServer builds the HTTPServer backing the gateway's HTTP surface.
func NewServer(
	flip *tableflip.Upgrader,
	config *conf.Bootstrap,
	plugins []pluginv1.Plugin,
	orch *orchestrator.Orchestrator,
	browsers *browserpool.Manager,
	reg *metrics.Registry,
) transport.Server {
	servConfig := config.Server

	s := &HTTPServer{
		Server: &http.Server{
			Addr:              servConfig.Addr,
			ReadTimeout:       servConfig.ReadTimeout,
			WriteTimeout:      servConfig.WriteTimeout,
			IdleTimeout:       servConfig.IdleTimeout,
			ReadHeaderTimeout: servConfig.ReadHeaderTimeout,
			MaxHeaderBytes:    servConfig.MaxHeaderBytes,
		},
		plugins:      plugins,
		flip:         flip,
		config:       config,
		serverConfig: servConfig,
		orchestrator: orch,
		browsers:     browsers,
		metrics:      reg,
	}

	mux := s.buildMux()

	next := s.instrument(mux.ServeHTTP)
	for _, plug := range s.plugins {
		if cur := plug.HandleFunc(next); cur != nil {
			next = cur
		}
	}

	s.Handler = mod.HandleAccessLog(servConfig.AccessLog, next)

	return s
}

func (s *HTTPServer) Start(ctx context.Context) error {
	s.BaseContext = func(ln net.Listener) context.Context {
		return ctx
	}

	if err := s.listen(); err != nil {
		return err
	}

	log.Infof("gateway HTTP server listening on %s", s.config.Server.Addr)

	if err := s.Serve(s.listener); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.Shutdown(ctx)
}

func (s *HTTPServer) listen() error {
	if s.flip == nil {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return err
		}
		s.listener = ln
		return nil
	}

	ln, err := s.flip.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// buildMux wires every control-plane and business route onto a single
// mux: pprof/version/metrics/health plumbing alongside
// POST /service/html, POST /service/screenshot, GET
// /service/health/liveness, GET /service/health/readiness, GET
// /service/browsers/supported. POST /service/clean_html is registered on
// this same mux by the sanitizer plugin's AddRouter below.
func (s *HTTPServer) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mod.HandlePProf(s.serverConfig.PProf, mux)
	mux.Handle("/favicon.ico", http.NotFoundHandler())
	mux.HandleFunc("/version", s.handleVersion)
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	mux.HandleFunc("/service/health/liveness", s.handleLiveness)
	mux.HandleFunc("/service/health/readiness", s.handleReadiness)
	mux.HandleFunc("/service/browsers/supported", s.handleBrowsersSupported)
	mux.HandleFunc("/service/html", s.handleFetch("html", s.orchestrator.FetchHTML))
	mux.HandleFunc("/service/screenshot", s.handleFetch("screenshot", s.orchestrator.FetchScreenshot))

	for _, plug := range s.plugins {
		plug.AddRouter(mux)
	}

	return mux
}

func (s *HTTPServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	payload, _ := json.Marshal(struct {
		runtime.RuntimeInfo
		RequestsPerSecond float64 `json:"requests_per_second"`
	}{
		RuntimeInfo:       runtime.BuildInfo,
		RequestsPerSecond: s.metrics.RequestsPerSecond(),
	})
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *HTTPServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleReadiness answers 200 iff the requested browser_type has a live
// instance, 503 otherwise. With no browser_type query param it
// reports overall process readiness.
func (s *HTTPServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	browserType := r.URL.Query().Get("browser_type")
	if browserType == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	engine := fetchtypes.Engine(browserType)
	if !engine.Valid() {
		http.Error(w, "unknown browser_type", http.StatusBadRequest)
		return
	}
	if !s.browsers.IsAvailable(engine) {
		http.Error(w, "browser instance not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) handleBrowsersSupported(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(fetchtypes.SupportedEngines)
}

// handleFetch decodes a FetchRequest body, runs it through the
// orchestrator, and writes back the FetchResult as JSON.
func (s *HTTPServer) handleFetch(operation string, do func(context.Context, *fetchtypes.FetchRequest) (*fetchtypes.FetchResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req fetchtypes.FetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := req.Validate(); err != nil {
			s.metrics.APIErrorsTotal.WithLabelValues("validation").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := do(r.Context(), &req)
		if err != nil {
			s.metrics.APIErrorsTotal.WithLabelValues(operation).Inc()
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(result)
	}
}

// instrument records api_requests_total/api_request_duration_seconds/
// api_requests_in_flight around every request, business or control-plane.
func (s *HTTPServer) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		s.metrics.APIRequestsInFlight.WithLabelValues(r.Method, path).Inc()
		defer s.metrics.APIRequestsInFlight.WithLabelValues(r.Method, path).Dec()

		start := time.Now()
		recorder := xhttp.NewResponseRecorder(w)
		next(recorder, r)

		s.metrics.APIRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		s.metrics.APIRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.Status())).Inc()
		s.metrics.APIResponseSize.WithLabelValues(r.Method, path).Observe(float64(recorder.Size()))
	}
}
