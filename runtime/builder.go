package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/runtimekit/component"
	"github.com/c360/runtimekit/config"
	"github.com/c360/runtimekit/health"
	"github.com/c360/runtimekit/metric"
	"github.com/c360/runtimekit/resolver"
)

// Default orchestration knobs.
const (
	DefaultStartTimeout = 30 * time.Second
	DefaultStopTimeout  = 30 * time.Second
	DefaultParallelism  = 4
)

// Builder accumulates configuration sources and component
// registrations, then assembles them into a running System.
type Builder struct {
	sources        []config.Source
	registry       *component.Registry
	logger         *slog.Logger
	metrics        *metric.Registry
	startTimeout   time.Duration
	stopTimeout    time.Duration
	parallelism    int
	hotReload      bool
	healthInterval time.Duration
	healthOpts     []health.Option

	err error // first registration error, surfaced at Build
}

// New returns a Builder with default timeouts and parallelism.
func New() *Builder {
	return &Builder{
		registry:     component.NewRegistry(),
		startTimeout: DefaultStartTimeout,
		stopTimeout:  DefaultStopTimeout,
		parallelism:  DefaultParallelism,
	}
}

// AddConfigSource appends a configuration layer. Sources merge by
// priority, not registration order.
func (b *Builder) AddConfigSource(src config.Source) *Builder {
	b.sources = append(b.sources, src)
	return b
}

// EnableHotReload turns on config watching and the rebind loop.
func (b *Builder) EnableHotReload() *Builder {
	b.hotReload = true
	return b
}

// Register adds a component descriptor. Registration errors are
// deferred and returned from Build so call chains stay fluent.
func (b *Builder) Register(desc *component.Descriptor) *Builder {
	if err := b.registry.Register(desc); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// WithLogger sets the system logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics sets the metrics registry. A fresh one is created when
// unset.
func (b *Builder) WithMetrics(m *metric.Registry) *Builder {
	b.metrics = m
	return b
}

// WithStartTimeout bounds each component's Start call.
func (b *Builder) WithStartTimeout(d time.Duration) *Builder {
	b.startTimeout = d
	return b
}

// WithStopTimeout bounds each component's Stop call.
func (b *Builder) WithStopTimeout(d time.Duration) *Builder {
	b.stopTimeout = d
	return b
}

// WithParallelism caps how many components start or stop at once
// within a layer.
func (b *Builder) WithParallelism(n int) *Builder {
	if n > 0 {
		b.parallelism = n
	}
	return b
}

// WithHealthInterval enables background health polling on the built
// system.
func (b *Builder) WithHealthInterval(d time.Duration) *Builder {
	b.healthInterval = d
	return b
}

// WithHealthOptions forwards tuning options to the health aggregator.
func (b *Builder) WithHealthOptions(opts ...health.Option) *Builder {
	b.healthOpts = append(b.healthOpts, opts...)
	return b
}

// Build loads configuration, resolves dependency order, and starts
// every enabled singleton component layer by layer. On any failure the
// components already running are stopped in reverse order and the
// error is returned; no partially started system escapes. Registry,
// resolution, and config-load errors surface before any component
// starts.
func (b *Builder) Build(ctx context.Context) (*System, error) {
	if b.err != nil {
		return nil, b.err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = metric.NewRegistry()
	}

	store := config.NewStore(logger, b.sources...)
	snap, err := store.Load(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	metrics.Core().ObserveReload(snap.Version(), nil)

	order, err := resolver.Resolve(b.registry)
	if err != nil {
		store.Close()
		return nil, err
	}

	aggOpts := append([]health.Option{
		health.WithObserver(func(r health.Report) {
			metrics.Core().ProbeDuration.WithLabelValues(r.Component).Observe(r.Latency.Seconds())
		}),
	}, b.healthOpts...)

	orch := &orchestrator{
		logger:       logger.With("subsystem", "runtime"),
		metrics:      metrics,
		registry:     b.registry,
		store:        store,
		aggregator:   health.NewAggregator(logger, aggOpts...),
		startTimeout: b.startTimeout,
		stopTimeout:  b.stopTimeout,
		parallelism:  b.parallelism,
		instances:    make(map[string]*component.Instance),
	}

	if err := orch.startAll(ctx, snap, order); err != nil {
		store.Close()
		return nil, err
	}

	// Every bound subtree becomes a reload constraint: a recomputed
	// snapshot that drops one is rejected before publication and the
	// previous snapshot stays current.
	for _, name := range order.Names() {
		inst, ok := orch.instance(name)
		if !ok {
			continue
		}
		desc := inst.Descriptor()
		if desc.ConfigPath == "" {
			continue
		}
		if _, ok := inst.Value().(component.Configurable); ok {
			store.RequireShape(desc.Name, desc.ConfigPath, map[string]any{})
		}
	}

	sys := newSystem(orch, order)

	if b.hotReload {
		if err := sys.startHotReload(); err != nil {
			sys.Shutdown(context.Background())
			return nil, err
		}
	}
	if b.healthInterval > 0 {
		sys.startHealthPolling(b.healthInterval)
	}

	logger.Info("system built",
		"components", order.Len(),
		"layers", len(order.Layers()),
		"config_version", snap.Version())
	return sys, nil
}
