// Package plugin is the global plugin registry: concrete plugins
// self-register their constructor via init(), and main.go resolves
// configured plugin names against it. Mirrors
// server/middleware/registry.go's Register/Create/global-registry
// pattern, generalized from middleware.Factory to a plugin constructor.
package plugin

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	pluginv1 "github.com/zxjlm/playwright-gateway/api/defined/v1/plugin"
	"github.com/zxjlm/playwright-gateway/contrib/log"
)

// Factory builds a Plugin from its decoded options.
type Factory func(opts pluginv1.Option, logger *log.Helper) (pluginv1.Plugin, error)

// ErrNotFound is returned when no factory is registered under the
// requested name.
var ErrNotFound = errors.New("plugin has not been registered")

var failedPluginCreate = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "failed_plugin_create_total",
	Help:      "Total number of plugin constructions that failed.",
}, []string{"name"})

func init() {
	prometheus.MustRegister(failedPluginCreate)
}

type registry struct {
	plugins map[string]Factory
}

func newRegistry() *registry {
	return &registry{plugins: make(map[string]Factory)}
}

var globalRegistry = newRegistry()

// Register registers a plugin constructor under name.
func Register(name string, factory Factory) {
	globalRegistry.plugins[fullName(name)] = factory
}

// PluginConfig is the minimal shape Create needs from a configured
// plugin entry (conf.Plugin satisfies this).
type PluginConfig interface {
	pluginv1.Option
	PluginName() string
}

// Create instantiates the plugin named by cfg.PluginName().
func Create(cfg PluginConfig, logger *log.Helper) (pluginv1.Plugin, error) {
	factory, ok := globalRegistry.plugins[fullName(cfg.PluginName())]
	if !ok {
		failedPluginCreate.WithLabelValues(cfg.PluginName()).Inc()
		return nil, ErrNotFound
	}
	instance, err := factory(cfg, logger)
	if err != nil {
		failedPluginCreate.WithLabelValues(cfg.PluginName()).Inc()
		return nil, err
	}
	return instance, nil
}

func fullName(name string) string {
	return strings.ToLower("gateway.plugin." + name)
}
