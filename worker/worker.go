package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/observability"
)

// Job is the unit of work executed by a worker. The context carries the
// submitter's values but not its cancellation.
type Job func(ctx context.Context) error

// Failure describes a task that returned an error or panicked.
type Failure struct {
	Task string
	Key  string
	Err  error
}

// FailureHook observes failed tasks. It runs on the worker goroutine.
type FailureHook func(ctx context.Context, f Failure)

// Options configures a Pool.
type Options struct {
	Workers   int
	QueueSize int
	Logger    *slog.Logger
	OnFailure FailureHook
}

// Pool is a fixed-size, sharded pool of goroutines. Tasks with the same key
// land on the same worker and run in submission order.
type Pool struct {
	shards    []chan *Task
	stop      chan struct{}
	stopOnce  sync.Once
	mu        sync.RWMutex
	closed    bool
	started   bool
	wg        sync.WaitGroup
	logger    *slog.Logger
	onFailure FailureHook
}

// New creates a pool with opts.Workers workers, each owning a queue of opts.QueueSize.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		panic("number of workers must be positive")
	}

	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shards := make([]chan *Task, opts.Workers)
	for i := range shards {
		shards[i] = make(chan *Task, opts.QueueSize)
	}

	return &Pool{
		shards:    shards,
		stop:      make(chan struct{}),
		logger:    logger,
		onFailure: opts.OnFailure,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}

	p.started = true

	p.wg.Add(len(p.shards))
	for i := range p.shards {
		go p.run(p.shards[i])
	}
}

// Stop stops accepting tasks and waits for queued and running tasks to finish
// or for ctx to expire, whichever comes first. On a pool that was never started,
// queued tasks finish with ErrPoolClosed without running.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		// wake blocked submitters before taking the write lock
		close(p.stop)

		p.mu.Lock()
		p.closed = true
		started := p.started
		for _, ch := range p.shards {
			close(ch)
		}
		p.mu.Unlock()

		if !started {
			p.abandon()
		}
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop worker pool: %w", ctx.Err())
	}
}

// Submit queues fn on the shard selected by key. It blocks while that shard's
// queue is full and returns when the task is queued, the pool closes or ctx is done.
func (p *Pool) Submit(ctx context.Context, key, name string, fn Job) (*Task, error) {
	t := newTask(ctx, key, name, fn)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		observability.TaskRejected("closed")
		return nil, fmt.Errorf("submit %s: %w", name, serr.ErrPoolClosed)
	}

	select {
	case p.shard(key) <- t:
		observability.TaskQueued()
		return t, nil
	case <-p.stop:
		observability.TaskRejected("closed")
		return nil, fmt.Errorf("submit %s: %w", name, serr.ErrPoolClosed)
	case <-ctx.Done():
		observability.TaskRejected("context")
		return nil, ctx.Err()
	}
}

// TrySubmit queues fn without blocking. It returns ErrQueueFull when the shard is at capacity.
func (p *Pool) TrySubmit(ctx context.Context, key, name string, fn Job) (*Task, error) {
	t := newTask(ctx, key, name, fn)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		observability.TaskRejected("closed")
		return nil, fmt.Errorf("submit %s: %w", name, serr.ErrPoolClosed)
	}

	select {
	case p.shard(key) <- t:
		observability.TaskQueued()
		return t, nil
	default:
		observability.TaskRejected("full")
		return nil, fmt.Errorf("submit %s: %w", name, serr.ErrQueueFull)
	}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return len(p.shards) }

func (p *Pool) shard(key string) chan *Task {
	if len(p.shards) == 1 {
		return p.shards[0]
	}

	return p.shards[xxhash.Sum64String(key)%uint64(len(p.shards))]
}

// abandon finishes every queued task of a never started pool.
func (p *Pool) abandon() {
	for _, ch := range p.shards {
		for t := range ch {
			err := fmt.Errorf("task %s: %w", t.name, serr.ErrPoolClosed)
			observability.TaskFinished(t.name, 0, err)
			t.finish(err)
		}
	}
}

// run is the worker's execution loop. It drains its queue until the queue is closed.
func (p *Pool) run(queue chan *Task) {
	defer p.wg.Done()

	for t := range queue {
		p.execute(t)
	}
}

func (p *Pool) execute(t *Task) {
	ctx, span := observability.StartSpan(t.ctx, "worker.task",
		trace.WithAttributes(
			attribute.String("task.name", t.name),
			attribute.String("task.key", t.key),
		),
	)

	start := time.Now()
	err := invoke(ctx, t)

	observability.TaskFinished(t.name, time.Since(start).Seconds(), err)
	observability.EndSpan(span, err)

	if err != nil {
		p.logger.ErrorContext(ctx, "task failed",
			slog.String("task", t.name),
			slog.String("key", t.key),
			slog.Any("error", err),
		)

		if p.onFailure != nil {
			p.onFailure(ctx, Failure{Task: t.name, Key: t.key, Err: err})
		}
	}

	t.finish(err)
}

func invoke(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s: %w: %v\n%s", t.name, serr.ErrHandlerPanic, r, debug.Stack())
		}
	}()

	return t.fn(ctx)
}
