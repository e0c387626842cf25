package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/runtimekit/component"
	"github.com/c360/runtimekit/config"
	"github.com/c360/runtimekit/errors"
	"github.com/c360/runtimekit/health"
	"github.com/c360/runtimekit/metric"
	"github.com/c360/runtimekit/pkg/worker"
	"github.com/c360/runtimekit/resolver"
)

// orchestrator drives component lifecycles: construction, config
// binding, layered start, rebinding on config change, and reverse
// teardown.
type orchestrator struct {
	logger       *slog.Logger
	metrics      *metric.Registry
	registry     *component.Registry
	store        *config.Store
	aggregator   *health.Aggregator
	startTimeout time.Duration
	stopTimeout  time.Duration
	parallelism  int

	mu        sync.RWMutex
	instances map[string]*component.Instance
	snapshot  *config.Snapshot
}

// startAll walks the resolved layers and starts each one concurrently.
// Any failure stops everything already running, in reverse start
// order, before the error is returned.
func (o *orchestrator) startAll(ctx context.Context, snap *config.Snapshot, order *resolver.Order) error {
	buildID := uuid.NewString()
	o.logger.Info("starting components",
		"build_id", buildID,
		"components", order.Len(),
		"layers", len(order.Layers()))

	o.mu.Lock()
	o.snapshot = snap
	o.mu.Unlock()

	startOrder := 0
	for layerIdx, layer := range order.Layers() {
		// Eager start applies to singletons; transient and scoped
		// components wait for resolution.
		var eager []string
		for _, name := range layer {
			desc, err := o.registry.Get(name)
			if err != nil {
				return err
			}
			if desc.Lifetime == component.Singleton {
				eager = append(eager, name)
			}
		}

		orders := make(map[string]int, len(eager))
		for _, name := range eager {
			orders[name] = startOrder
			startOrder++
		}

		err := worker.RunBatch(ctx, o.parallelism, eager, func(ctx context.Context, name string) error {
			return o.startOne(ctx, snap, name, orders[name])
		})
		if err != nil {
			o.logger.Error("component start failed, rolling back",
				"build_id", buildID,
				"layer", layerIdx,
				"error", err)
			o.rollback(context.Background())
			return err
		}
	}
	return nil
}

// startOne builds, configures, and starts a single component, moving
// its instance through the lifecycle states.
func (o *orchestrator) startOne(ctx context.Context, snap *config.Snapshot, name string, startOrder int) error {
	desc, err := o.registry.Get(name)
	if err != nil {
		return err
	}

	began := time.Now()
	inst, err := o.construct(desc, snap)
	if err != nil {
		o.metrics.Core().ObserveStart(name, time.Since(began), true)
		return err
	}
	inst.SetStartOrder(startOrder)

	if err := o.configure(inst, snap); err != nil {
		inst.Fail(err)
		o.metrics.Core().ObserveStart(name, time.Since(began), true)
		return err
	}

	if err := o.start(ctx, inst); err != nil {
		o.metrics.Core().ObserveStart(name, time.Since(began), true)
		return err
	}
	o.metrics.Core().ObserveStart(name, time.Since(began), false)

	o.mu.Lock()
	o.instances[name] = inst
	o.mu.Unlock()

	if prober, ok := inst.Value().(component.Prober); ok {
		o.aggregator.Register(name, prober.Probe)
	}

	o.logger.Info("component started",
		"component", name,
		"start_order", startOrder,
		"duration", time.Since(began))
	return nil
}

// construct runs the factory with injected dependencies.
func (o *orchestrator) construct(desc *component.Descriptor, snap *config.Snapshot) (*component.Instance, error) {
	deps := component.Dependencies{
		Logger:  o.logger.With("component", desc.Name),
		Metrics: o.metrics,
		Config:  snap,
		Resolve: o.resolveFor(desc),
	}

	value, err := desc.Factory(deps)
	if err != nil {
		return nil, &errors.BuildError{Component: desc.Name, Cause: err}
	}
	inst := component.NewInstance(desc, value)
	o.setState(inst, component.Registered)
	return inst, nil
}

// resolveFor restricts dependency resolution to the names a descriptor
// declared, so undeclared coupling fails loudly at build time.
func (o *orchestrator) resolveFor(desc *component.Descriptor) func(string) (any, error) {
	declared := make(map[string]bool, len(desc.Dependencies))
	for _, dep := range desc.Dependencies {
		declared[dep] = true
	}
	return func(name string) (any, error) {
		if !declared[name] {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q is not a declared dependency of %q",
					errors.ErrUnknownComponent, name, desc.Name),
				"orchestrator", "Resolve", "check declaration")
		}
		o.mu.RLock()
		inst, ok := o.instances[name]
		o.mu.RUnlock()
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q is not running", errors.ErrUnknownComponent, name),
				"orchestrator", "Resolve", "lookup instance")
		}
		return inst.Value(), nil
	}
}

// configure binds the component's config subtree if it asks for one.
func (o *orchestrator) configure(inst *component.Instance, snap *config.Snapshot) error {
	desc := inst.Descriptor()
	if err := inst.Transition(component.Configuring); err != nil {
		return err
	}
	o.setState(inst, component.Configuring)
	if cfg, ok := inst.Value().(component.Configurable); ok {
		if desc.ConfigPath == "" || !snap.Has(desc.ConfigPath) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: component %q expects config at %q",
					errors.ErrConfigBinding, desc.Name, desc.ConfigPath),
				"orchestrator", "configure", "locate subtree")
		}
		if err := cfg.Configure(snap, desc.ConfigPath); err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("component %q: %w: %v", desc.Name, errors.ErrConfigBinding, err),
				"orchestrator", "configure", "bind subtree")
		}
	}
	if err := inst.Transition(component.Configured); err != nil {
		return err
	}
	o.setState(inst, component.Configured)
	return nil
}

// start invokes the component's Start hook under the start timeout.
func (o *orchestrator) start(ctx context.Context, inst *component.Instance) error {
	name := inst.Name()
	if err := inst.Transition(component.Starting); err != nil {
		return err
	}
	o.setState(inst, component.Starting)

	if starter, ok := inst.Value().(component.Starter); ok {
		startCtx, cancel := context.WithTimeout(ctx, o.startTimeout)
		inst.BindContext(cancel)

		done := make(chan error, 1)
		go func() { done <- starter.Start(startCtx) }()

		// The deadline is unconditional: a hook that ignores
		// cancellation and finishes late has still failed.
		var err error
		select {
		case err = <-done:
			if stderrors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: component %q exceeded %s",
					errors.ErrStartTimeout, name, o.startTimeout)
			}
		case <-startCtx.Done():
			if stderrors.Is(startCtx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: component %q exceeded %s",
					errors.ErrStartTimeout, name, o.startTimeout)
			} else {
				err = startCtx.Err()
			}
		}
		cancel()
		if err != nil {
			buildErr := &errors.BuildError{Component: name, Cause: err}
			inst.Fail(buildErr)
			o.setState(inst, component.Failed)
			return buildErr
		}
	}

	if err := inst.Transition(component.Running); err != nil {
		return err
	}
	o.setState(inst, component.Running)
	return nil
}

// rollback stops every started component in reverse start order.
// Failures during rollback are logged, not returned; the build error
// that triggered the rollback is what the caller sees.
func (o *orchestrator) rollback(ctx context.Context) {
	o.mu.Lock()
	started := make([]*component.Instance, 0, len(o.instances))
	for _, inst := range o.instances {
		started = append(started, inst)
	}
	o.instances = make(map[string]*component.Instance)
	o.mu.Unlock()

	sort.Slice(started, func(i, j int) bool {
		return started[i].StartOrder() > started[j].StartOrder()
	})

	for _, inst := range started {
		if err := o.stopOne(ctx, inst); err != nil {
			o.logger.Error("rollback stop failed",
				"component", inst.Name(),
				"error", err)
		}
	}
}

// stopAll walks reversed layers, stopping each layer concurrently.
// Every failure is collected; the walk never aborts early.
func (o *orchestrator) stopAll(ctx context.Context, order *resolver.Order) error {
	layers := order.Layers()
	failures := make(map[string]error)
	var failMu sync.Mutex

	for i := len(layers) - 1; i >= 0; i-- {
		layer := layers[i]
		// Stop hooks must all run, so the batch processor swallows
		// errors and records them instead.
		_ = worker.RunBatch(ctx, o.parallelism, layer, func(ctx context.Context, name string) error {
			o.mu.RLock()
			inst, ok := o.instances[name]
			o.mu.RUnlock()
			if !ok {
				return nil
			}
			if err := o.stopOne(ctx, inst); err != nil {
				failMu.Lock()
				failures[name] = err
				failMu.Unlock()
			}
			return nil
		})
	}

	if len(failures) > 0 {
		return &errors.ShutdownError{Failures: failures}
	}
	return nil
}

// stopOne runs a component's Stop hook under the stop timeout and
// tears down its registrations.
func (o *orchestrator) stopOne(ctx context.Context, inst *component.Instance) error {
	name := inst.Name()
	o.aggregator.Deregister(name)
	o.metrics.UnregisterComponent(name)

	if inst.State() != component.Running {
		// Never ran or already failed; nothing to stop.
		return nil
	}
	if err := inst.Transition(component.Stopping); err != nil {
		return err
	}
	o.setState(inst, component.Stopping)

	began := time.Now()
	var stopErr error
	if stopper, ok := inst.Value().(component.Stopper); ok {
		stopCtx, cancel := context.WithTimeout(ctx, o.stopTimeout)
		done := make(chan error, 1)
		go func() { done <- stopper.Stop(stopCtx) }()
		select {
		case stopErr = <-done:
		case <-stopCtx.Done():
			// Teardown never waits on a hook that ignores its deadline.
			stopErr = fmt.Errorf("%w: stop of %q exceeded %s",
				errors.ErrStopFailed, name, o.stopTimeout)
		}
		cancel()
	}
	inst.CancelContext()
	o.metrics.Core().ObserveStop(name, time.Since(began))

	if stopErr != nil {
		wrapped := errors.Wrap(stopErr, "orchestrator", "stopOne",
			fmt.Sprintf("stop component %q", name))
		inst.Fail(wrapped)
		o.setState(inst, component.Failed)
		return wrapped
	}

	if err := inst.Transition(component.Stopped); err != nil {
		return err
	}
	o.setState(inst, component.Stopped)
	o.logger.Info("component stopped", "component", name, "duration", time.Since(began))
	return nil
}

// rebind applies a new snapshot to running components whose config
// subtree changed. Only Reconfigurable components are touched; a
// failed reconfigure marks that component Failed and leaves the rest
// alone.
func (o *orchestrator) rebind(snap *config.Snapshot) {
	o.mu.Lock()
	old := o.snapshot
	o.snapshot = snap
	running := make([]*component.Instance, 0, len(o.instances))
	for _, inst := range o.instances {
		running = append(running, inst)
	}
	o.mu.Unlock()

	changed := snap.ChangedPaths(old)
	if len(changed) == 0 {
		return
	}
	o.metrics.Core().ObserveReload(snap.Version(), nil)
	o.logger.Info("applying config change",
		"version", snap.Version(),
		"changed_paths", len(changed))

	for _, inst := range running {
		desc := inst.Descriptor()
		if desc.ConfigPath == "" || !config.SubtreeChanged(changed, desc.ConfigPath) {
			continue
		}
		if inst.State() != component.Running {
			continue
		}
		recfg, ok := inst.Value().(component.Reconfigurable)
		if !ok {
			// Picked up on next restart.
			o.logger.Debug("config changed for static component",
				"component", desc.Name,
				"path", desc.ConfigPath)
			continue
		}

		err := o.reconfigureOne(recfg, inst, snap)
		if err != nil {
			o.metrics.Core().RebindsTotal.WithLabelValues(desc.Name, "failure").Inc()
			o.logger.Error("reconfigure failed",
				"component", desc.Name,
				"error", err)
			continue
		}
		o.metrics.Core().RebindsTotal.WithLabelValues(desc.Name, "success").Inc()
		o.logger.Info("component reconfigured",
			"component", desc.Name,
			"version", snap.Version())
	}
}

func (o *orchestrator) reconfigureOne(recfg component.Reconfigurable, inst *component.Instance, snap *config.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.startTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- recfg.Reconfigure(ctx, snap, inst.Descriptor().ConfigPath)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("%w: reconfigure of %q exceeded %s",
			errors.ErrReconfigureFailed, inst.Name(), o.startTimeout)
	}
	if err != nil {
		wrapped := errors.Wrap(
			fmt.Errorf("%w: %v", errors.ErrReconfigureFailed, err),
			"orchestrator", "rebind", fmt.Sprintf("reconfigure %q", inst.Name()))
		inst.Fail(wrapped)
		o.setState(inst, component.Failed)
		return wrapped
	}
	return nil
}

// instance returns the running instance for name.
func (o *orchestrator) instance(name string) (*component.Instance, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	inst, ok := o.instances[name]
	return inst, ok
}

func (o *orchestrator) currentSnapshot() *config.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

func (o *orchestrator) setState(inst *component.Instance, state component.State) {
	o.metrics.Core().SetComponentState(inst.Name(), int(state))
}
