// Package browserpool owns long-lived browserdriver.Engine instances per
// engine type: lazy creation, stale-driver recovery, and idle eviction.
// Grounded on original_source/browsers/browser_manager.py for the
// lazy-init/idle-reap shape, and on proxy.go's clientMap-under-mutex
// pattern for the per-engine bookkeeping.
package browserpool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zxjlm/playwright-gateway/browserdriver"
	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

const (
	idleCheckInterval  = 60 * time.Second
	defaultIdleTimeout = 10 * time.Minute
)

type instance struct {
	engine   browserdriver.Engine
	lastUsed time.Time
}

// Manager is the process-local browser lifecycle manager.
type Manager struct {
	mu       sync.Mutex
	factory  browserdriver.Factory
	instances map[fetchtypes.Engine]*instance
	reaperArmed bool
	stopReaper  chan struct{}

	instancesGauge *prometheus.GaugeVec
	reinitCounter  *prometheus.CounterVec

	idleTimeout time.Duration
	now         func() time.Time
}

// New builds a Manager that lazily creates engines via factory, evicting
// an engine after it has sat unused for idleTimeout (the configured
// browser.idle_timeout; 0 falls back to defaultIdleTimeout).
func New(factory browserdriver.Factory, reg prometheus.Registerer, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	m := &Manager{
		factory:     factory,
		instances:   make(map[fetchtypes.Engine]*instance),
		idleTimeout: idleTimeout,
		now:         time.Now,
		instancesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "browser_instances",
			Help: "Number of live browser instances by engine.",
		}, []string{"browser_type"}),
		reinitCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_reinitializations_total",
			Help: "Total browser engine reinitializations after stale detection.",
		}, []string{"browser_type"}),
	}
	reg.MustRegister(m.instancesGauge, m.reinitCounter)
	return m
}

// staleMarkers are substrings of a driver error that indicate the engine
// itself has been closed out from under the caller.
var staleMarkers = []string{
	"has been closed",
	"browser has been closed",
	"the handler is closed",
}

// IsStale reports whether err indicates the underlying engine driver has
// closed itself.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	var staleErr *browserdriver.StaleError
	if errors.As(err, &staleErr) {
		return true
	}
	msg := err.Error()
	for _, marker := range staleMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Acquire lazily starts engine if needed, marks it as recently used, and
// arms the idle reaper.
func (m *Manager) Acquire(ctx context.Context, engine fetchtypes.Engine) (browserdriver.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[engine]
	if !ok {
		eng, err := m.factory(ctx, engine)
		if err != nil {
			return nil, err
		}
		inst = &instance{engine: eng}
		m.instances[engine] = inst
		m.instancesGauge.WithLabelValues(string(engine)).Set(1)
	}
	inst.lastUsed = m.now()

	if !m.reaperArmed {
		m.reaperArmed = true
		m.stopReaper = make(chan struct{})
		go m.runReaper(m.stopReaper)
	}

	return inst.engine, nil
}

// Reinitialize evicts and recreates a single engine, used on stale
// detection ("retries exactly once after a full evict_all for
// that engine").
func (m *Manager) Reinitialize(ctx context.Context, engine fetchtypes.Engine) (browserdriver.Engine, error) {
	m.mu.Lock()
	if inst, ok := m.instances[engine]; ok {
		_ = inst.engine.Close(ctx)
		delete(m.instances, engine)
		m.instancesGauge.WithLabelValues(string(engine)).Set(0)
	}
	m.reinitCounter.WithLabelValues(string(engine)).Inc()
	m.mu.Unlock()

	return m.Acquire(ctx, engine)
}

// EvictAll closes every engine instance. Idempotent.
func (m *Manager) EvictAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for engine, inst := range m.instances {
		if err := inst.engine.Close(ctx); err != nil {
			log.Warnf("browserpool: close %s failed: %v", engine, err)
		}
		m.instancesGauge.WithLabelValues(string(engine)).Set(0)
	}
	m.instances = make(map[fetchtypes.Engine]*instance)

	if m.stopReaper != nil {
		close(m.stopReaper)
		m.stopReaper = nil
	}
	m.reaperArmed = false
}

// IsAvailable reports whether engine currently has a live instance.
func (m *Manager) IsAvailable(engine fetchtypes.Engine) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.instances[engine]
	return ok
}

func (m *Manager) runReaper(stop chan struct{}) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.idleLongEnough() {
				log.Infof("browserpool: idle for %s, evicting all engines", m.idleTimeout)
				m.EvictAll(context.Background())
				return
			}
		}
	}
}

func (m *Manager) idleLongEnough() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.instances) == 0 {
		return false
	}
	for _, inst := range m.instances {
		if m.now().Sub(inst.lastUsed) <= m.idleTimeout {
			return false
		}
	}
	return true
}
