// Package mcpstub provides a bearer-token-gated stand-in for the MCP
// protocol façade, named as an external collaborator out of the
// core's scope. It proves the extension point — a route
// real MCP tooling could later replace — without implementing the MCP
// wire protocol. Grounded on plugin/purge/purge.go's AddRouter +
// constructor shape.
package mcpstub

import (
	"context"
	"encoding/json"
	"net/http"

	pluginv1 "github.com/zxjlm/playwright-gateway/api/defined/v1/plugin"
	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/plugin"
)

var _ pluginv1.Plugin = (*Plugin)(nil)

type option struct {
	BearerToken string `json:"bearer_token" yaml:"bearer_token"`
}

// Plugin answers MCP capability discovery with a stub manifest; it does
// not implement tool dispatch.
type Plugin struct {
	log *log.Helper
	opt *option
}

func init() {
	plugin.Register("mcpstub", New)
}

func (p *Plugin) Start(_ context.Context) error { return nil }

func (p *Plugin) Stop(_ context.Context) error { return nil }

func (p *Plugin) AddRouter(mux *http.ServeMux) {
	mux.HandleFunc("/service/mcp", func(w http.ResponseWriter, r *http.Request) {
		if p.opt.BearerToken != "" && bearerToken(r.Header.Get("Authorization")) != p.opt.BearerToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"protocol": "mcp",
			"version":  "stub",
			"tools":    []string{},
		})
	})
}

func (p *Plugin) HandleFunc(next http.HandlerFunc) http.HandlerFunc { return next }

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

// New builds the mcpstub plugin from its decoded options.
func New(opts pluginv1.Option, logger *log.Helper) (pluginv1.Plugin, error) {
	opt := &option{}
	if err := opts.Unmarshal(opt); err != nil {
		return nil, err
	}
	return &Plugin{log: logger, opt: opt}, nil
}
