// Package runtimekit provides an in-process component runtime: it assembles
// independently-authored components into a running application, resolves
// their declared dependencies, drives them through a lifecycle, binds each
// component to a typed slice of layered configuration, watches configuration
// sources for changes, and aggregates per-component health into one
// system-wide status.
//
// # Architecture
//
// The runtime is built from five cooperating layers:
//
//	┌─────────────────────────────────────┐
//	│          runtime.Builder            │  Registration, config sources,
//	│   Register / AddConfigSource / Build│  build orchestration
//	└─────────────────────────────────────┘
//	           ↓ produces
//	┌─────────────────────────────────────┐
//	│          runtime.System             │  Resolve, Health, Shutdown
//	│  (running components + hot reload)  │
//	└─────────────────────────────────────┘
//	           ↓ built from
//	┌──────────┬──────────┬───────────────┐
//	│ config   │ resolver │ health        │  Layered snapshots, start
//	│ Store    │ Order    │ Aggregator    │  ordering, probe aggregation
//	└──────────┴──────────┴───────────────┘
//
// Components are plain values registered with a component.Descriptor and a
// factory. The runtime only needs to know that a component (a) is described
// by metadata, (b) may accept configuration, (c) may start and stop, and
// (d) may report health. Each of those capabilities is an optional interface
// (component.Configurable, component.Starter, component.Stopper,
// component.Prober); a component implements only what it needs.
//
// # Build Semantics
//
// Build walks the resolved dependency order in layers: a layer is the
// maximal set of not-yet-started components whose dependencies are all
// already running. Components within a layer configure and start
// concurrently with bounded parallelism; layers themselves run
// sequentially. A start failure triggers rollback: everything already
// running is stopped in reverse start order before Build returns the
// failure. Nothing partially runs.
//
// # Configuration
//
// The config.Store merges sources in increasing precedence: compiled-in
// defaults, file sources in registration order, environment variables, and
// explicit overrides. Each merge produces an immutable versioned Snapshot;
// a reload publishes a fresh snapshot atomically, so in-flight readers are
// never exposed to a partially merged view. When hot reload is enabled the
// runtime re-binds configuration only for running components whose bound
// subtree actually changed, through an optional Reconfigure hook.
//
// # Health
//
// Running components may expose a probe. The health.Aggregator runs probes
// under per-probe timeouts, caches results with a TTL, and folds them into
// one aggregate: unhealthy if any probe is unhealthy, else degraded if any
// is degraded, else healthy. Components without probes report unknown and
// never block the aggregate.
//
// # Quick Start
//
//	b := runtime.New().
//	    WithLogger(logger).
//	    AddConfigSource(config.NewFileSource("config/app.yaml")).
//	    AddConfigSource(config.NewEnvSource("ADSP")).
//	    EnableHotReload().
//	    Register(&component.Descriptor{
//	        Name:       "cache",
//	        Priority:   10,
//	        ConfigPath: "services.cache",
//	        Factory:    newCache,
//	    })
//
//	sys, err := b.Build(ctx)
//	if err != nil {
//	    log.Fatal(err) // reports which component failed and why
//	}
//	defer sys.Shutdown(context.Background())
package runtimekit
