package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/c360/runtimekit/errors"
)

// subscriberBuffer bounds each subscriber channel. When a subscriber
// lags, the oldest pending snapshot is dropped so the newest always
// gets through.
const subscriberBuffer = 4

// watchDebounce coalesces bursts of change signals (editors often fire
// several events per save) into a single reload.
const watchDebounce = 100 * time.Millisecond

// shapeRequirement records a subtree a component expects to bind.
type shapeRequirement struct {
	component string
	path      string
	prototype any
}

// Store merges layered sources into versioned immutable snapshots and
// publishes new snapshots to subscribers on reload. The current
// snapshot is always readable; a failed reload keeps the previous
// snapshot in place.
type Store struct {
	logger  *slog.Logger
	sources []Source // stable-sorted ascending by priority

	mu          sync.RWMutex
	current     *Snapshot
	loading     bool
	version     uint64
	subscribers map[int]chan *Snapshot
	nextSubID   int
	shapes      []shapeRequirement
	closed      bool

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// NewStore builds a store over the given sources. Sources merge in
// ascending priority order; ties keep registration order.
func NewStore(logger *slog.Logger, sources ...Source) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})
	return &Store{
		logger:      logger.With("subsystem", "config"),
		sources:     ordered,
		subscribers: make(map[int]chan *Snapshot),
	}
}

// RequireShape registers a validation constraint: path must bind into a
// value shaped like prototype on every load. Violations fail Load and
// Reload with ErrConfigValidation before any snapshot is published.
func (s *Store) RequireShape(component, path string, prototype any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shapes = append(s.shapes, shapeRequirement{
		component: component,
		path:      path,
		prototype: prototype,
	})
}

// Load performs the initial merge and publishes snapshot version 1.
// Calling Load twice is an error; use Reload for refreshes. A failed
// Load may be retried.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	if s.loading || s.current != nil {
		s.mu.Unlock()
		return nil, errors.WrapInvalid(
			fmt.Errorf("store already loaded: %w", errors.ErrConfigValidation),
			"Store", "Load", "check state")
	}
	s.loading = true
	s.mu.Unlock()

	snap, err := s.reload(ctx)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}
	return snap, err
}

// Reload re-reads every source, validates, and atomically publishes a
// new snapshot with an incremented version. On any source or
// validation failure the current snapshot stays in place and the error
// is returned.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	return s.reload(ctx)
}

func (s *Store) reload(ctx context.Context) (*Snapshot, error) {
	flat := make(map[string]any)
	for _, src := range s.sources {
		tree, err := src.Load(ctx)
		if err != nil {
			return nil, errors.Wrap(
				fmt.Errorf("source %s: %w", src.Name(), err),
				"Store", "Reload", "load source")
		}
		flattenInto(flat, "", tree)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.WrapInvalid(
			fmt.Errorf("store closed: %w", errors.ErrConfigValidation),
			"Store", "Reload", "check state")
	}
	candidate := newSnapshot(s.version+1, flat)
	shapes := s.shapes
	s.mu.Unlock()

	// Validate against the candidate before publishing anything.
	for _, req := range shapes {
		probe := reflect.New(reflect.TypeOf(req.prototype)).Interface()
		if err := candidate.Bind(req.path, probe); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("component %s requires %q: %w", req.component, req.path, err),
				"Store", "Reload", "validate shape")
		}
	}

	s.mu.Lock()
	s.version++
	candidate.version = s.version
	old := s.current
	s.current = candidate
	// Publishing happens under the lock so a concurrent Subscribe
	// cancel cannot close a channel mid-send; publish never blocks.
	for _, ch := range s.subscribers {
		publish(ch, candidate)
	}
	s.mu.Unlock()

	if old != nil {
		s.logger.Info("configuration reloaded",
			"version", candidate.Version(),
			"changed_paths", len(candidate.ChangedPaths(old)))
	} else {
		s.logger.Info("configuration loaded",
			"version", candidate.Version(),
			"paths", len(candidate.Paths()))
	}
	return candidate, nil
}

// publish delivers a snapshot with drop-oldest semantics so a stalled
// subscriber never blocks the reload path.
func publish(ch chan *Snapshot, snap *Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch: // evict the oldest pending snapshot
			default:
			}
		}
	}
}

// Current returns the latest published snapshot, or nil before the
// first Load.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe returns a channel receiving every snapshot published after
// the call, plus a cancel function that detaches and closes it.
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan *Snapshot, subscriberBuffer)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// StartWatching begins background reloads driven by every Watchable
// source. Change signals are debounced; a reload failure is logged and
// the previous snapshot remains current. No-op when no source is
// watchable.
func (s *Store) StartWatching(ctx context.Context) error {
	var signals []<-chan struct{}
	watchCtx, cancel := context.WithCancel(ctx)
	for _, src := range s.sources {
		w, ok := src.(Watchable)
		if !ok {
			continue
		}
		ch, err := w.Watch(watchCtx)
		if err != nil {
			cancel()
			return errors.Wrap(
				fmt.Errorf("source %s: %w", src.Name(), err),
				"Store", "StartWatching", "start watch")
		}
		signals = append(signals, ch)
	}
	if len(signals) == 0 {
		cancel()
		return nil
	}

	merged := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for _, ch := range signals {
		wg.Add(1)
		go func(ch <-chan struct{}) {
			defer wg.Done()
			for range ch {
				select {
				case merged <- struct{}{}:
				default:
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	s.mu.Lock()
	s.watchCancel = cancel
	s.watchDone = make(chan struct{})
	done := s.watchDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		timer := time.NewTimer(watchDebounce)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		pending := false
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-merged:
				if !ok {
					return
				}
				if !pending {
					pending = true
					timer.Reset(watchDebounce)
				}
			case <-timer.C:
				pending = false
				if _, err := s.reload(watchCtx); err != nil {
					s.logger.Error("reload after change failed, keeping previous snapshot",
						"error", err)
				}
			}
		}
	}()
	return nil
}

// Close stops watching and closes all subscriber channels. The last
// snapshot stays readable through Current.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.watchCancel
	done := s.watchDone
	subs := s.subscribers
	s.subscribers = make(map[int]chan *Snapshot)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, ch := range subs {
		close(ch)
	}
}

// flattenInto merges a nested tree into a flat dotted-path map. When a
// higher layer writes a leaf where a lower layer had a subtree (or the
// reverse), the lower layer's entries under that path are removed
// first so the override fully replaces them.
func flattenInto(flat map[string]any, prefix string, tree map[string]any) {
	for key, value := range tree {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			delete(flat, path) // subtree replaces any previous leaf
			flattenInto(flat, path, sub)
			continue
		}
		if anyKeyed, ok := value.(map[any]any); ok {
			delete(flat, path)
			flattenInto(flat, path, normalizeKeys(anyKeyed))
			continue
		}
		// leaf replaces any previous subtree under the same path
		subPrefix := path + "."
		for existing := range flat {
			if len(existing) > len(subPrefix) && existing[:len(subPrefix)] == subPrefix {
				delete(flat, existing)
			}
		}
		flat[path] = value
	}
}

// normalizeKeys converts YAML's map[any]any into map[string]any.
func normalizeKeys(in map[any]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[fmt.Sprint(k)] = v
	}
	return out
}
