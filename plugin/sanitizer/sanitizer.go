// Package sanitizer implements the POST /service/clean_html route
// as a plugin rather than an inline handler: real HTML sanitization is
// an opaque external collaborator, out of the core's scope, so this
// plugin satisfies the route's contract by returning the submitted
// HTML unchanged. Grounded on plugin/purge/purge.go's AddRouter +
// constructor shape.
package sanitizer

import (
	"context"
	"io"
	"net/http"

	pluginv1 "github.com/zxjlm/playwright-gateway/api/defined/v1/plugin"
	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/plugin"
)

var _ pluginv1.Plugin = (*Plugin)(nil)

type option struct {
	// MaxBodyBytes bounds the request body read; 0 means use the default.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

const defaultMaxBodyBytes = 10 << 20

// Plugin is a no-op HTML sanitizer: it echoes the submitted HTML back
// unchanged, proving the extension point without implementing real
// sanitization logic.
type Plugin struct {
	log *log.Helper
	opt *option
}

func init() {
	plugin.Register("sanitizer", New)
}

func (p *Plugin) Start(_ context.Context) error { return nil }

func (p *Plugin) Stop(_ context.Context) error { return nil }

func (p *Plugin) AddRouter(mux *http.ServeMux) {
	mux.HandleFunc("/service/clean_html", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		limit := p.opt.MaxBodyBytes
		if limit <= 0 {
			limit = defaultMaxBodyBytes
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, limit))
		if err != nil {
			p.log.Warnf("sanitizer: failed to read request body: %v", err)
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	})
}

func (p *Plugin) HandleFunc(next http.HandlerFunc) http.HandlerFunc { return next }

// New builds the sanitizer plugin from its decoded options.
func New(opts pluginv1.Option, logger *log.Helper) (pluginv1.Plugin, error) {
	opt := &option{}
	if err := opts.Unmarshal(opt); err != nil {
		return nil, err
	}
	return &Plugin{log: logger, opt: opt}, nil
}
