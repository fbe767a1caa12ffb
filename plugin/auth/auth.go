// Package auth gates the gateway's business routes behind a bearer
// token, satisfying the auth_config collaborator (request/auth
// token validation is named as an external collaborator, out of the
// core's scope) as a real plugin. Grounded on
// plugin/purge/purge.go's method-filtering HandleFunc idiom
// ("if req.Method != Method { next(w, req); return }"), adapted to
// filter by path prefix and header instead of HTTP method.
package auth

import (
	"context"
	"net/http"
	"strings"

	pluginv1 "github.com/zxjlm/playwright-gateway/api/defined/v1/plugin"
	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/plugin"
)

var _ pluginv1.Plugin = (*Plugin)(nil)

type option struct {
	// Enabled mirrors its auth_config: 0/false disables header auth.
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	BearerToken       string   `json:"bearer_token" yaml:"bearer_token"`
	ProtectedPrefixes []string `json:"protected_prefixes" yaml:"protected_prefixes"`
}

// Plugin rejects requests under a protected prefix that don't present the
// configured bearer token.
type Plugin struct {
	log *log.Helper
	opt *option
}

func init() {
	plugin.Register("auth", New)
}

func (p *Plugin) Start(_ context.Context) error { return nil }

func (p *Plugin) Stop(_ context.Context) error { return nil }

func (p *Plugin) AddRouter(_ *http.ServeMux) {}

func (p *Plugin) HandleFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !p.opt.Enabled || !p.protected(r.URL.Path) {
			next(w, r)
			return
		}

		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" || token != p.opt.BearerToken {
			p.log.Warnf("auth: rejected %s %s: missing or invalid bearer token", r.Method, r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="gateway"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (p *Plugin) protected(path string) bool {
	if len(p.opt.ProtectedPrefixes) == 0 {
		return strings.HasPrefix(path, "/service/")
	}
	for _, prefix := range p.opt.ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

// New builds the auth plugin from its decoded options.
func New(opts pluginv1.Option, logger *log.Helper) (pluginv1.Plugin, error) {
	opt := &option{ProtectedPrefixes: []string{"/service/"}}
	if err := opts.Unmarshal(opt); err != nil {
		return nil, err
	}
	return &Plugin{log: logger, opt: opt}, nil
}
