// Package plugin defines the contract an external collaborator plugin
// must satisfy to be wired into the gateway's HTTP surface: the lifecycle
// + routing contract plugin/purge/purge.go already implements, paired
// with a config-decode pattern for the plugin's own options.
package plugin

import (
	"context"
	"net/http"
)

// Option decodes a plugin's configured options into a concrete struct.
type Option interface {
	Unmarshal(v any) error
}

// Plugin is an external collaborator exposed through the gateway: the
// MCP façade, the HTML sanitizer, and request/auth token validation are
// all realized as plugins rather than inline handlers, proving
// the extension point without committing the core to their real logic.
type Plugin interface {
	// Start and Stop give the plugin its own transport.Server lifecycle
	// (main.go runs every loaded plugin alongside the HTTP server).
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// AddRouter registers the plugin's own routes on the server's single mux.
	AddRouter(mux *http.ServeMux)
	// HandleFunc wraps the handler chain in front of that mux; a plugin that
	// does not care about a given request must call next and return.
	HandleFunc(next http.HandlerFunc) http.HandlerFunc
}
