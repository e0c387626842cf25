package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/c360/runtimekit/metric"
)

// Pool is a generic worker pool processing items of type T.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	registry *metric.Registry
	owner    string
	metrics  *poolMetrics
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	processed  prometheus.Counter
	failed     prometheus.Counter
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithMetrics registers queue and throughput metrics under the given
// component name.
func WithMetrics[T any](registry *metric.Registry, owner string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.owner = owner
	}
}

// NewPool builds a pool. Zero or negative sizes fall back to defaults
// (4 workers, 256 queue slots). A nil processor panics immediately
// rather than at first submit.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry != nil && p.owner != "" {
		p.initMetrics()
	}
	return p
}

func (p *Pool[T]) initMetrics() {
	prefix := p.owner + "_pool"
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Current worker pool queue depth",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Work items submitted",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_processed_total",
			Help: "Work items processed successfully",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_failed_total",
			Help: "Work items that failed processing",
		}),
	}
	// Registration failures (duplicate owner) just disable pool metrics.
	if err := p.registry.RegisterGauge(p.owner, "pool_queue_depth", m.queueDepth); err != nil {
		return
	}
	_ = p.registry.RegisterCounter(p.owner, "pool_submitted", m.submitted)
	_ = p.registry.RegisterCounter(p.owner, "pool_processed", m.processed)
	_ = p.registry.RegisterCounter(p.owner, "pool_failed", m.failed)
	p.metrics = m
}

// Start launches the workers. The pool runs until Stop or until ctx is
// cancelled.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.started {
		return ErrPoolAlreadyStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for range p.workers {
		p.wg.Add(1)
		go p.work(runCtx)
	}
	return nil
}

func (p *Pool[T]) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.workChan:
			if !ok {
				return
			}
			if p.metrics != nil {
				p.metrics.queueDepth.Set(float64(len(p.workChan)))
			}
			if err := p.processor(ctx, item); err != nil {
				p.failed.Add(1)
				if p.metrics != nil {
					p.metrics.failed.Inc()
				}
				continue
			}
			p.processed.Add(1)
			if p.metrics != nil {
				p.metrics.processed.Inc()
			}
		}
	}
}

// Submit queues an item without blocking. Returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool[T]) Submit(item T) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.lifecycleMu.Unlock()
		return ErrPoolStopped
	}
	p.lifecycleMu.Unlock()

	select {
	case p.workChan <- item:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight work to finish, up to
// the timeout. Idempotent.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.workChan)
	cancel := p.cancel
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		cancel()
		<-done
		return ErrStopTimeout
	}
}

// Stats returns cumulative counters since the pool was created.
func (p *Pool[T]) Stats() (submitted, processed, failed int64) {
	return p.submitted.Load(), p.processed.Load(), p.failed.Load()
}

// RunBatch processes items with bounded parallelism and fail-fast
// semantics: the first processor error cancels the shared context and
// is returned once in-flight items finish. Items not yet started are
// skipped after a failure.
func RunBatch[T any](ctx context.Context, parallelism int, items []T, processor func(context.Context, T) error) error {
	if parallelism <= 0 {
		parallelism = len(items)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // a sibling already failed
			}
			return processor(gctx, item)
		})
	}
	return g.Wait()
}
