package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/runtimekit/errors"
)

// State is a position in the component lifecycle state machine.
type State int

const (
	Registered State = iota
	Configuring
	Configured
	Starting
	Running
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Configuring:
		return "configuring"
	case Configured:
		return "configured"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions is the legal edge set of the lifecycle graph.
var transitions = map[State][]State{
	Registered:  {Configuring, Failed},
	Configuring: {Configured, Failed},
	Configured:  {Starting, Failed},
	Starting:    {Running, Failed},
	Running:     {Stopping, Failed},
	Stopping:    {Stopped, Failed},
	Stopped:     {},
	Failed:      {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Instance is a live component under runtime management: the value the
// factory produced plus its lifecycle bookkeeping. All methods are safe
// for concurrent use.
type Instance struct {
	descriptor *Descriptor
	value      any

	mu         sync.RWMutex
	state      State
	startOrder int
	startedAt  time.Time
	lastErr    error

	cancel context.CancelFunc
}

// NewInstance wraps a freshly constructed component value.
func NewInstance(desc *Descriptor, value any) *Instance {
	return &Instance{
		descriptor: desc,
		value:      value,
		state:      Registered,
	}
}

// Descriptor returns the registration record the instance was built from.
func (i *Instance) Descriptor() *Descriptor { return i.descriptor }

// Name returns the component's registered name.
func (i *Instance) Name() string { return i.descriptor.Name }

// Value returns the component value the factory produced.
func (i *Instance) Value() any { return i.value }

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Transition moves the instance to a new state, enforcing the lifecycle
// graph. Illegal moves fail with ErrInvalidTransition and leave the
// state unchanged.
func (i *Instance) Transition(to State) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !CanTransition(i.state, to) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s: %s -> %s",
				errors.ErrInvalidTransition, i.descriptor.Name, i.state, to),
			"Instance", "Transition", "check edge")
	}
	i.state = to
	if to == Running {
		i.startedAt = time.Now()
	}
	return nil
}

// Fail records an error and forces the instance into Failed from any
// state. Failed is always reachable, so this cannot be rejected.
func (i *Instance) Fail(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = Failed
	i.lastErr = err
}

// LastError returns the error recorded by the most recent Fail, if any.
func (i *Instance) LastError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// StartOrder returns the instance's position in the global start
// sequence, assigned by the orchestrator.
func (i *Instance) StartOrder() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.startOrder
}

// SetStartOrder records the global start position.
func (i *Instance) SetStartOrder(order int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.startOrder = order
}

// Uptime reports how long the instance has been Running, zero otherwise.
func (i *Instance) Uptime() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.state != Running || i.startedAt.IsZero() {
		return 0
	}
	return time.Since(i.startedAt)
}

// BindContext stores the cancel function for the instance's run
// context so shutdown can interrupt in-flight work.
func (i *Instance) BindContext(cancel context.CancelFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancel = cancel
}

// CancelContext cancels the instance's run context, if one was bound.
func (i *Instance) CancelContext() {
	i.mu.RLock()
	cancel := i.cancel
	i.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}
