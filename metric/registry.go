// Package metric manages Prometheus instrumentation for the runtime
// and the components it hosts. A single Registry owns the Prometheus
// registry, pre-registers the runtime's core metrics, and gives each
// component a namespaced place to register its own instruments.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/runtimekit/errors"
)

// Registrar is the component-facing slice of the registry.
type Registrar interface {
	RegisterCounter(component, name string, counter prometheus.Counter) error
	RegisterGauge(component, name string, gauge prometheus.Gauge) error
	RegisterHistogram(component, name string, histogram prometheus.Histogram) error
	Unregister(component, name string) bool
}

// Registry manages metric registration and lifecycle. Component
// metrics are keyed by "component.metric" so a component cannot
// register the same name twice, and everything a component registered
// can be torn down when it stops.
type Registry struct {
	prom *prometheus.Registry
	core *Core

	mu         sync.RWMutex
	registered map[string]prometheus.Collector
}

// NewRegistry builds a registry with core runtime metrics and Go
// process collectors already registered.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()
	r := &Registry{
		prom:       prom,
		registered: make(map[string]prometheus.Collector),
	}
	r.core = newCore()
	r.core.mustRegister(prom)
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry for exposition handlers
// and tests.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Core returns the runtime's own metrics.
func (r *Registry) Core() *Core {
	return r.core
}

// RegisterCounter registers a counter on behalf of a component.
func (r *Registry) RegisterCounter(component, name string, counter prometheus.Counter) error {
	return r.register(component, name, counter, "RegisterCounter")
}

// RegisterGauge registers a gauge on behalf of a component.
func (r *Registry) RegisterGauge(component, name string, gauge prometheus.Gauge) error {
	return r.register(component, name, gauge, "RegisterGauge")
}

// RegisterHistogram registers a histogram on behalf of a component.
func (r *Registry) RegisterHistogram(component, name string, histogram prometheus.Histogram) error {
	return r.register(component, name, histogram, "RegisterHistogram")
}

func (r *Registry) register(component, name string, c prometheus.Collector, method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", name, component),
			"Registry", method, "check duplicate")
	}

	if err := r.prom.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapInvalid(err, "Registry", method,
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "Registry", method, "register with prometheus")
	}

	r.registered[key] = c
	return nil
}

// Unregister removes a component metric. Returns false when the metric
// was never registered.
func (r *Registry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	c, exists := r.registered[key]
	if !exists {
		return false
	}
	delete(r.registered, key)
	return r.prom.Unregister(c)
}

// UnregisterComponent removes every metric a component registered.
// Called when a component is torn down so a rebuilt instance can
// re-register cleanly.
func (r *Registry) UnregisterComponent(component string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := component + "."
	removed := 0
	for key, c := range r.registered {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(r.registered, key)
			if r.prom.Unregister(c) {
				removed++
			}
		}
	}
	return removed
}
