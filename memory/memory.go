package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/next-trace/scg-signal-bus/adapters/inmemory"
	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/handlers"
	"github.com/next-trace/scg-signal-bus/orm"
	"github.com/next-trace/scg-signal-bus/signalbus"
	"github.com/next-trace/scg-signal-bus/worker"
)

const stopTimeout = 5 * time.Second

type settings struct {
	logger  *slog.Logger
	store   *orm.Store
	workers int
	queue   int
	sync    bool
}

// Option configures New.
type Option func(*settings)

// WithLogger sets the logger shared by the bus, pool and handlers.
func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.logger = l } }

// WithStore routes the store's signals to the bus and snapshots changes into it.
func WithStore(st *orm.Store) Option { return func(s *settings) { s.store = st } }

// WithWorkers sizes the pool.
func WithWorkers(n, queue int) Option {
	return func(s *settings) {
		s.workers = n
		s.queue = queue
	}
}

// WithSync registers the handlers synchronously. It cannot be combined with a
// SQLite store: the changelog write would wait on the save's write lock.
func WithSync() Option { return func(s *settings) { s.sync = true } }

// Env is a fully wired signal bus publishing notifications to memory.
type Env struct {
	Bus         *signalbus.Bus
	Pool        *worker.Pool
	Publisher   *inmemory.Publisher
	Dispatchers []*signalbus.Dispatcher
}

// Wait blocks until every queued handler task has finished.
func (e *Env) Wait(ctx context.Context) error {
	var errs []error

	for _, d := range e.Dispatchers {
		if err := d.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// New constructs a bus with the shipped handlers registered, a started pool and
// the in-memory publisher, along with a cleanup function that drains the pool.
func New(opts ...Option) (*Env, func(), error) {
	s := settings{workers: 2, queue: 64}
	for _, o := range opts {
		o(&s)
	}

	if s.sync && s.store != nil && s.store.Driver() == orm.DriverSQLite {
		return nil, nil, fmt.Errorf("memory env: sync handlers with a sqlite store: %w", serr.ErrConfigInvalid)
	}

	b := signalbus.New(s.logger)
	pool := worker.New(worker.Options{Workers: s.workers, QueueSize: s.queue, Logger: s.logger})
	pool.Start()

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		_ = pool.Stop(ctx)
	}

	pub := inmemory.New()
	deps := handlers.Deps{Publisher: pub, Logger: s.logger, Sync: s.sync}

	if s.store != nil {
		deps.Snapshots = s.store
		s.store.SetEmitter(b)
	}

	ds, err := handlers.RegisterAll(b, pool, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return &Env{Bus: b, Pool: pool, Publisher: pub, Dispatchers: ds}, cleanup, nil
}
