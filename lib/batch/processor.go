package batch

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("batch")

var (
	ErrNotRunning    = errors.New("batch processor is not running")
	ErrNilItem       = errors.New("item must not be nil")
	ErrInvalidConfig = errors.New("invalid batch processor config")
)

// Handler processes one batch. The slice is owned by the handler.
type Handler[T any] func(batch []T) error

// Options configures a Processor
type Options struct {
	MaxBatchSize int // Max items passed to one handler call (> 0)
	QueueSize    int // Max items waiting in the queue (> 0)
}

// DefaultOptions returns the default processor options
func DefaultOptions() Options {
	return Options{
		MaxBatchSize: 1000,
		QueueSize:    1000,
	}
}

// Stats is a snapshot of the processor counters
type Stats struct {
	Name       string `json:"name"`
	Processed  int64  `json:"processed"`
	Dropped    int64  `json:"dropped"`
	Errors     int64  `json:"errors"`
	QueueDepth int    `json:"queue_depth"`
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats{Name: %s, Processed: %d, Dropped: %d, Errors: %d, QueueDepth: %d}",
		s.Name, s.Processed, s.Dropped, s.Errors, s.QueueDepth)
}

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// --------------------------------------------------------------------------
// Processor
// --------------------------------------------------------------------------

// Processor decouples producers from a slow consumer. Items are queued in a
// bounded queue and handed to the handler in batches by a single worker.
//
// Put never blocks: on a full queue the oldest item is dropped to make room for
// the new one.
//
// Thread-safety: All methods are safe for concurrent use.
type Processor[T any] struct {
	name    string
	handler Handler[T]
	opts    Options

	queue chan T
	state atomic.Int32
	done  chan struct{}
	wg    sync.WaitGroup
	// mu orders state transitions against in-flight Puts: Put holds it shared
	// from the state check until the item is queued.
	mu sync.RWMutex

	registry  metrics.Registry
	processed metrics.Counter
	dropped   metrics.Counter
	errs      metrics.Counter
}

// New creates a processor. It accepts items right away but only processes them
// after Start.
func New[T any](name string, handler Handler[T], opts Options) (*Processor[T], error) {
	if handler == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "handler must not be nil")
	}
	if opts.MaxBatchSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "max batch size must be positive, got %d", opts.MaxBatchSize)
	}
	if opts.QueueSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "queue size must be positive, got %d", opts.QueueSize)
	}

	p := &Processor[T]{
		name:     name,
		handler:  handler,
		opts:     opts,
		queue:    make(chan T, opts.QueueSize),
		done:     make(chan struct{}),
		registry: metrics.NewRegistry(),
	}

	p.processed = metrics.GetOrRegisterCounter("processed", p.registry)
	p.dropped = metrics.GetOrRegisterCounter("dropped", p.registry)
	p.errs = metrics.GetOrRegisterCounter("errors", p.registry)
	_ = p.registry.Register("queue_depth", metrics.NewFunctionalGauge(func() int64 {
		return int64(len(p.queue))
	}))

	return p, nil
}

// Start spawns the worker. Calling Start on a running or stopped processor has no effect.
func (p *Processor[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.CompareAndSwap(stateNew, stateRunning) {
		return
	}
	p.wg.Add(1)
	go p.run()
}

// Stop rejects further items, hands the items still queued to the handler and
// waits until the worker has exited. Stop is idempotent, a stopped processor
// can not be restarted.
func (p *Processor[T]) Stop() {
	p.mu.Lock()
	prev := p.state.Swap(stateStopped)
	p.mu.Unlock()

	switch prev {
	case stateRunning:
		close(p.done)
		p.wg.Wait()
	case stateNew:
		// never started, nobody else reads the queue
		p.drain()
	}
}

// Put enqueues an item without blocking. If the queue is full the oldest item
// is dropped and counted.
func (p *Processor[T]) Put(item T) error {
	if isNil(item) {
		return ErrNilItem
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state.Load() == stateStopped {
		return ErrNotRunning
	}

	for {
		select {
		case p.queue <- item:
			return nil
		default:
		}

		// queue full: evict the oldest item and retry
		select {
		case <-p.queue:
			p.dropped.Inc(1)
		default:
		}
	}
}

// Stats returns a snapshot of the counters
func (p *Processor[T]) Stats() Stats {
	return Stats{
		Name:       p.name,
		Processed:  p.processed.Count(),
		Dropped:    p.dropped.Count(),
		Errors:     p.errs.Count(),
		QueueDepth: len(p.queue),
	}
}

// Registry exposes the processor metrics (processed, dropped, errors, queue_depth)
func (p *Processor[T]) Registry() metrics.Registry {
	return p.registry
}

// Name returns the name of the processor
func (p *Processor[T]) Name() string {
	return p.name
}

// --------------------------------------------------------------------------
// Worker
// --------------------------------------------------------------------------

func (p *Processor[T]) run() {
	defer p.wg.Done()

	for {
		select {
		case item := <-p.queue:
			p.process(p.collect(item))
		case <-p.done:
			p.drain()
			return
		}
	}
}

// collect drains up to MaxBatchSize-1 queued items without blocking
func (p *Processor[T]) collect(first T) []T {
	batch := make([]T, 1, min(p.opts.MaxBatchSize, len(p.queue)+1))
	batch[0] = first

	for len(batch) < p.opts.MaxBatchSize {
		select {
		case item := <-p.queue:
			batch = append(batch, item)
		default:
			return batch
		}
	}
	return batch
}

// drain hands everything still queued to the handler
func (p *Processor[T]) drain() {
	for {
		select {
		case item := <-p.queue:
			p.process(p.collect(item))
		default:
			return
		}
	}
}

// process calls the handler. Errors and panics are counted and logged, the
// batch is dropped either way.
func (p *Processor[T]) process(batch []T) {
	defer func() {
		if r := recover(); r != nil {
			p.errs.Inc(1)
			Logger.Errorf("batch processor %s: handler panicked on batch of %d: %v", p.name, len(batch), r)
		}
	}()

	if err := p.handler(batch); err != nil {
		p.errs.Inc(1)
		Logger.Warningf("batch processor %s: dropping batch of %d: %v", p.name, len(batch), err)
		return
	}
	p.processed.Inc(int64(len(batch)))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
