package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe reports one component's health on demand. Probes must respect
// ctx and return promptly once it is cancelled.
type Probe func(ctx context.Context) Report

// Default timing knobs.
const (
	DefaultTTL          = 5 * time.Second
	DefaultProbeTimeout = 2 * time.Second
	DefaultConcurrency  = 8
)

type cachedReport struct {
	report  Report
	expires time.Time
}

// Aggregator runs registered probes with caching and concurrency
// limits. Safe for concurrent use.
type Aggregator struct {
	logger       *slog.Logger
	ttl          time.Duration
	probeTimeout time.Duration
	concurrency  int
	now          func() time.Time
	observer     func(Report)

	mu     sync.RWMutex
	probes map[string]Probe
	cache  map[string]cachedReport
}

// Option tunes an Aggregator.
type Option func(*Aggregator)

// WithTTL sets how long a probe result is served from cache.
func WithTTL(ttl time.Duration) Option {
	return func(a *Aggregator) { a.ttl = ttl }
}

// WithProbeTimeout bounds each individual probe call.
func WithProbeTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.probeTimeout = d }
}

// WithConcurrency caps how many probes run at once during CheckAll.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

// WithObserver registers a callback invoked after every fresh probe
// run. Cache hits are not observed.
func WithObserver(fn func(Report)) Option {
	return func(a *Aggregator) { a.observer = fn }
}

// NewAggregator builds an aggregator with default timings.
func NewAggregator(logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		logger:       logger.With("subsystem", "health"),
		ttl:          DefaultTTL,
		probeTimeout: DefaultProbeTimeout,
		concurrency:  DefaultConcurrency,
		now:          time.Now,
		probes:       make(map[string]Probe),
		cache:        make(map[string]cachedReport),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds or replaces the probe for a component.
func (a *Aggregator) Register(name string, probe Probe) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes[name] = probe
	delete(a.cache, name)
}

// Deregister removes a component's probe and cached report.
func (a *Aggregator) Deregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.probes, name)
	delete(a.cache, name)
}

// Check returns the component's health, serving from cache when the
// last probe is still fresh. Unregistered components report Unknown.
func (a *Aggregator) Check(ctx context.Context, name string) Report {
	a.mu.RLock()
	probe, registered := a.probes[name]
	cached, hit := a.cache[name]
	a.mu.RUnlock()

	if !registered {
		return Report{
			Component: name,
			Status:    Unknown,
			Message:   "no probe registered",
			CheckedAt: a.now(),
		}
	}
	if hit && a.now().Before(cached.expires) {
		return cached.report
	}

	report := a.runProbe(ctx, name, probe)

	a.mu.Lock()
	a.cache[name] = cachedReport{report: report, expires: a.now().Add(a.ttl)}
	a.mu.Unlock()

	if a.observer != nil {
		a.observer(report)
	}
	return report
}

// CheckAll probes every registered component concurrently and folds
// the results into a system summary. Fresh cached reports are reused.
func (a *Aggregator) CheckAll(ctx context.Context) Summary {
	a.mu.RLock()
	names := make([]string, 0, len(a.probes))
	for name := range a.probes {
		names = append(names, name)
	}
	a.mu.RUnlock()

	reports := make(map[string]Report, len(names))
	var reportMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, name := range names {
		g.Go(func() error {
			report := a.Check(gctx, name)
			reportMu.Lock()
			reports[name] = report
			reportMu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // probes never return errors, they report them

	return Fold(reports)
}

// Invalidate drops any cached report so the next Check probes fresh.
func (a *Aggregator) Invalidate(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, name)
}

// Run probes all components on a fixed interval until ctx is
// cancelled, logging every system status change.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := Unknown
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := a.CheckAll(ctx)
			if summary.Status != last {
				a.logger.Info("system health changed",
					"from", last.String(),
					"to", summary.Status.String())
				last = summary.Status
			}
		}
	}
}

// runProbe executes one probe under the configured timeout, converting
// timeouts and panics into unhealthy reports.
func (a *Aggregator) runProbe(ctx context.Context, name string, probe Probe) (report Report) {
	began := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	done := make(chan Report, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("health probe panicked",
					"component", name, "panic", fmt.Sprint(r))
				done <- Report{
					Status:    Unhealthy,
					Message:   "probe panicked",
					CheckedAt: a.now(),
				}
			}
		}()
		done <- probe(probeCtx)
	}()

	select {
	case report = <-done:
	case <-probeCtx.Done():
		report = Report{
			Status:    Unhealthy,
			Message:   "probe timed out",
			CheckedAt: a.now(),
		}
	}
	report.Component = name
	report.Latency = time.Since(began)
	if report.CheckedAt.IsZero() {
		report.CheckedAt = a.now()
	}
	return report
}
