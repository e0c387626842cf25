package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/runtimekit/component"
	"github.com/c360/runtimekit/config"
	"github.com/c360/runtimekit/errors"
	"github.com/c360/runtimekit/health"
	"github.com/c360/runtimekit/metric"
	"github.com/c360/runtimekit/resolver"
)

// System is a running set of components. It is the only handle Build
// returns; everything the application needs at runtime goes through it.
type System struct {
	orch  *orchestrator
	order *resolver.Order

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

func newSystem(orch *orchestrator, order *resolver.Order) *System {
	ctx, cancel := context.WithCancel(context.Background())
	return &System{
		orch:     orch,
		order:    order,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// startHotReload begins watching config sources and rebinding
// components as snapshots arrive.
func (s *System) startHotReload() error {
	if err := s.orch.store.StartWatching(s.bgCtx); err != nil {
		return err
	}

	snapshots, unsubscribe := s.orch.store.Subscribe()
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer unsubscribe()
		for {
			select {
			case <-s.bgCtx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				s.orch.rebind(snap)
			}
		}
	}()
	return nil
}

// startHealthPolling runs the aggregator on a fixed interval in the
// background.
func (s *System) startHealthPolling(interval time.Duration) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.orch.aggregator.Run(s.bgCtx, interval)
	}()
}

// Resolve returns a component instance by name according to its
// lifetime: singletons return the running instance, transients are
// built fresh per call. Scoped components must be resolved through a
// Scope.
func (s *System) Resolve(name string) (any, error) {
	desc, err := s.orch.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if !desc.Enabled {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q is disabled", errors.ErrUnknownComponent, name),
			"System", "Resolve", "check enabled")
	}

	switch desc.Lifetime {
	case component.Singleton:
		inst, ok := s.orch.instance(name)
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q is not running", errors.ErrUnknownComponent, name),
				"System", "Resolve", "lookup singleton")
		}
		s.orch.metrics.Core().ResolutionsTotal.WithLabelValues("singleton").Inc()
		return inst.Value(), nil

	case component.Transient:
		inst, err := s.buildOnDemand(desc)
		if err != nil {
			return nil, err
		}
		s.orch.metrics.Core().ResolutionsTotal.WithLabelValues("transient").Inc()
		return inst.Value(), nil

	case component.Scoped:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q is scoped, resolve it through a Scope",
				errors.ErrUnknownComponent, name),
			"System", "Resolve", "check lifetime")

	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q has unknown lifetime %v",
				errors.ErrUnknownComponent, name, desc.Lifetime),
			"System", "Resolve", "check lifetime")
	}
}

// buildOnDemand constructs, configures, and starts a non-singleton
// instance outside the layer walk. The caller owns its teardown.
func (s *System) buildOnDemand(desc *component.Descriptor) (*component.Instance, error) {
	snap := s.orch.currentSnapshot()
	inst, err := s.orch.construct(desc, snap)
	if err != nil {
		return nil, err
	}
	if err := s.orch.configure(inst, snap); err != nil {
		return nil, err
	}
	if err := s.orch.start(context.Background(), inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Scope opens a child scope: scoped components resolved through it are
// built once and shared within the scope, then torn down together when
// the scope closes.
func (s *System) Scope() *Scope {
	return &Scope{
		id:        uuid.NewString(),
		system:    s,
		instances: make(map[string]*component.Instance),
	}
}

// Health probes every running component and folds the results.
func (s *System) Health(ctx context.Context) health.Summary {
	summary := s.orch.aggregator.CheckAll(ctx)
	for name, report := range summary.Reports {
		s.orch.metrics.Core().HealthStatus.WithLabelValues(name).Set(float64(report.Status))
	}
	return summary
}

// HealthOf probes one component.
func (s *System) HealthOf(ctx context.Context, name string) health.Report {
	return s.orch.aggregator.Check(ctx, name)
}

// Config returns the currently pinned snapshot.
func (s *System) Config() *config.Snapshot {
	return s.orch.currentSnapshot()
}

// State returns a component's lifecycle state, or Registered false
// when the name has no running instance.
func (s *System) State(name string) (component.State, bool) {
	inst, ok := s.orch.instance(name)
	if !ok {
		return component.Registered, false
	}
	return inst.State(), true
}

// Metrics returns the system's metrics registry for exposition.
func (s *System) Metrics() *metric.Registry {
	return s.orch.metrics
}

// Shutdown stops background loops, then stops every running component
// in reverse dependency order. Stop failures are collected into a
// ShutdownError; the walk always completes. Safe to call more than
// once; later calls return the first result.
func (s *System) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.bgCancel()
		s.bg.Wait()
		s.shutdownErr = s.orch.stopAll(ctx, s.order)
		s.orch.store.Close()
		s.orch.logger.Info("system shut down")
	})
	return s.shutdownErr
}

// Scope is a uuid-identified resolution scope. Not safe for concurrent
// use by multiple goroutines; open one scope per unit of work.
type Scope struct {
	id        string
	system    *System
	instances map[string]*component.Instance
	creation  []string
	closed    bool
}

// ID returns the scope's unique identifier.
func (sc *Scope) ID() string { return sc.id }

// Resolve returns the scoped instance for name, building it on first
// use. Singleton and transient names delegate to the system so scoped
// code can resolve anything.
func (sc *Scope) Resolve(name string) (any, error) {
	if sc.closed {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: scope %s is closed", errors.ErrUnknownComponent, sc.id),
			"Scope", "Resolve", "check state")
	}

	desc, err := sc.system.orch.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if desc.Lifetime != component.Scoped {
		return sc.system.Resolve(name)
	}

	if inst, ok := sc.instances[name]; ok {
		return inst.Value(), nil
	}
	inst, err := sc.system.buildOnDemand(desc)
	if err != nil {
		return nil, err
	}
	sc.instances[name] = inst
	sc.creation = append(sc.creation, name)
	sc.system.orch.metrics.Core().ResolutionsTotal.WithLabelValues("scoped").Inc()
	return inst.Value(), nil
}

// Close stops the scope's instances in reverse creation order and
// discards them. Idempotent.
func (sc *Scope) Close(ctx context.Context) error {
	if sc.closed {
		return nil
	}
	sc.closed = true

	failures := make(map[string]error)
	for i := len(sc.creation) - 1; i >= 0; i-- {
		name := sc.creation[i]
		inst := sc.instances[name]
		if err := sc.system.orch.stopOne(ctx, inst); err != nil {
			failures[name] = err
		}
	}
	sc.instances = nil
	sc.creation = nil

	if len(failures) > 0 {
		return &errors.ShutdownError{Failures: failures}
	}
	return nil
}
