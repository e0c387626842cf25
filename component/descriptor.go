package component

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/runtimekit/config"
	"github.com/c360/runtimekit/errors"
	"github.com/c360/runtimekit/health"
	"github.com/c360/runtimekit/metric"
)

// Lifetime controls how the runtime hands out instances of a component.
type Lifetime int

const (
	// Singleton components are built once and shared by every resolver.
	Singleton Lifetime = iota

	// Scoped components are built once per scope and shared within it.
	Scoped

	// Transient components are built fresh on every resolution.
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// Descriptor is the registration record for a component: identity,
// ordering hints, wiring, and where its configuration lives.
type Descriptor struct {
	// Name uniquely identifies the component within a registry.
	Name string

	// Priority breaks ordering ties between components in the same
	// dependency layer. Lower values start earlier.
	Priority int

	// Lifetime selects the instantiation policy. Zero value is Singleton.
	Lifetime Lifetime

	// Dependencies names components that must be running before this
	// one starts.
	Dependencies []string

	// Enabled gates participation. Disabled components are skipped by
	// the resolver; depending on a disabled component is an error.
	Enabled bool

	// ConfigPath is the dotted path of the component's config subtree.
	// Empty means the component takes no configuration.
	ConfigPath string

	// Factory constructs the component.
	Factory Factory
}

// Validate checks the descriptor is complete enough to register.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: descriptor has no name", errors.ErrConfigValidation),
			"Descriptor", "Validate", "check name")
	}
	if d.Factory == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: component %q has no factory", errors.ErrConfigValidation, d.Name),
			"Descriptor", "Validate", "check factory")
	}
	for _, dep := range d.Dependencies {
		if dep == d.Name {
			return errors.WrapInvalid(
				fmt.Errorf("%w: component %q depends on itself", errors.ErrCycleDetected, d.Name),
				"Descriptor", "Validate", "check dependencies")
		}
	}
	return nil
}

// Factory constructs a component from its runtime dependencies.
type Factory func(deps Dependencies) (any, error)

// Dependencies is what the runtime injects into every factory.
type Dependencies struct {
	// Logger is pre-scoped to the component's name.
	Logger *slog.Logger

	// Metrics registers the component's instruments.
	Metrics *metric.Registry

	// Config is the component's subtree snapshot accessor.
	Config *config.Snapshot

	// Resolve fetches an already-started dependency by name. Only the
	// names declared in the descriptor's Dependencies are resolvable.
	Resolve func(name string) (any, error)
}

// Configurable components receive their config subtree after
// construction and before start. A binding failure aborts the build.
type Configurable interface {
	Configure(snap *config.Snapshot, path string) error
}

// Reconfigurable components accept config changes while running.
// Reconfigure must respect ctx's deadline; returning an error leaves
// the component on its previous config.
type Reconfigurable interface {
	Reconfigure(ctx context.Context, snap *config.Snapshot, path string) error
}

// Starter components run startup work. Start must respect ctx's
// deadline; the runtime cancels it on timeout or rollback.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper components run shutdown work under a deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Prober components report their own health on demand.
type Prober interface {
	Probe(ctx context.Context) health.Report
}
