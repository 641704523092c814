package signalbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/observability"
	"github.com/next-trace/scg-signal-bus/worker"
)

const routeGeneric = "generic"

// Options is a handler's static registration: its name, whether it runs on the
// pool, and which kinds it listens for per entity type.
type Options struct {
	Name     string
	Async    bool
	Handling signal.Handling
	Logger   *slog.Logger
}

// Dispatcher binds one Handler to the bus. It classifies incoming signals and
// invokes the matching callback inline or on the pool.
type Dispatcher struct {
	name    string
	async   bool
	handler signal.Handler
	pool    *worker.Pool
	logger  *slog.Logger

	inflight sync.WaitGroup
}

// Register walks opts.Handling and connects h to every (kind, entity) pair it declares.
// Async handlers require a pool.
func Register(b *Bus, pool *worker.Pool, h signal.Handler, opts Options) (*Dispatcher, error) {
	if h == nil || opts.Name == "" {
		return nil, fmt.Errorf("register %q: %w", opts.Name, serr.ErrInvalidBinding)
	}

	if opts.Async && pool == nil {
		return nil, fmt.Errorf("register %s: async handler without pool: %w", opts.Name, serr.ErrInvalidBinding)
	}

	logger := opts.Logger
	if logger == nil {
		logger = b.logger
	}

	d := &Dispatcher{
		name:    opts.Name,
		async:   opts.Async,
		handler: h,
		pool:    pool,
		logger:  logger.With(slog.String("handler", opts.Name)),
	}

	for _, binding := range opts.Handling {
		if len(binding.Kinds) == 0 {
			return nil, fmt.Errorf("register %s on %s: no kinds: %w", opts.Name, binding.Entity, serr.ErrInvalidBinding)
		}

		for _, kind := range binding.Kinds {
			if err := b.Connect(kind, binding.Entity, opts.Name, d.Dispatch); err != nil {
				return nil, fmt.Errorf("register %s: %w", opts.Name, err)
			}
		}
	}

	return d, nil
}

// Name returns the handler name.
func (d *Dispatcher) Name() string { return d.name }

// Async reports whether callbacks run on the pool.
func (d *Dispatcher) Async() bool { return d.async }

// Dispatch classifies ev, labels it and invokes the matching callback.
func (d *Dispatcher) Dispatch(ctx context.Context, ev signal.Event) error {
	op, err := Classify(ev)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", d.name, err)
	}

	ev = ev.WithOperation(op)

	var cb func(context.Context, signal.Event) error

	switch op {
	case signal.OperationCreate:
		cb = d.handler.Create
	case signal.OperationUpdate:
		cb = d.handler.Update
	case signal.OperationDelete:
		cb = d.handler.Delete
	default:
		return fmt.Errorf("dispatch %s %s: %w", d.name, op, serr.ErrHandlerNotFound)
	}

	return d.run(ctx, string(op), ev, cb)
}

// Generic routes ev to the handler's generic callback under the same sync/async policy.
// The event is passed through unclassified.
func (d *Dispatcher) Generic(ctx context.Context, ev signal.Event) error {
	return d.run(ctx, routeGeneric, ev, d.handler.Generic)
}

// Wait blocks until every task this dispatcher submitted has finished, or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, route string, ev signal.Event, cb func(context.Context, signal.Event) error) error {
	call := func(ctx context.Context, mode string) error {
		err := cb(ctx, ev)
		observability.Dispatched(d.name, route, mode, err)

		if err != nil {
			return fmt.Errorf("%s %s %s: %w", d.name, route, ev.Sender, errors.Join(serr.ErrHandlerFailed, err))
		}

		return nil
	}

	if !d.async {
		return call(ctx, "sync")
	}

	d.inflight.Add(1)

	t, err := d.pool.Submit(ctx, ev.ShardKey(), d.name+"."+route, func(ctx context.Context) error {
		return call(ctx, "async")
	})
	if err != nil {
		d.inflight.Done()
		d.logger.WarnContext(ctx, "dispatch not queued",
			slog.String("route", route),
			slog.String("entity", string(ev.Sender)),
			slog.String("event_id", ev.ID),
			slog.Any("error", err),
		)

		return fmt.Errorf("dispatch %s %s: %w", d.name, route, err)
	}

	// tasks abandoned by a stopped pool never run the job
	go func() {
		<-t.Done()
		d.inflight.Done()
	}()

	return nil
}
