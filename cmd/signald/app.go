package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-signal-bus/config"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/handlers"
	"github.com/next-trace/scg-signal-bus/observability"
	"github.com/next-trace/scg-signal-bus/orm"
	"github.com/next-trace/scg-signal-bus/signalbus"
	"github.com/next-trace/scg-signal-bus/worker"
)

// app is the wired dispatch pipeline: store -> bus -> dispatchers -> pool.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *orm.Store
	bus         *signalbus.Bus
	pool        *worker.Pool
	publisher   signal.Publisher
	dispatchers []*signalbus.Dispatcher

	closePublisher func()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	observability.InstallPropagator()

	store, err := orm.Open(cfg.Store.Driver, cfg.Store.DSN, orm.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	pub, closePub, err := newPublisher(cfg.Broker, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		bus:            signalbus.New(logger),
		publisher:      pub,
		closePublisher: closePub,
	}

	a.pool = worker.New(worker.Options{
		Workers:   cfg.Pool.Workers,
		QueueSize: cfg.Pool.QueueSize,
		Logger:    logger,
		OnFailure: a.recordFailure,
	})

	a.dispatchers, err = handlers.RegisterAll(a.bus, a.pool, handlers.Deps{
		Publisher:  pub,
		Propagator: observability.Propagator{},
		Snapshots:  store,
		Logger:     logger,
		Sync:       cfg.Dispatch.Sync,
	})
	if err != nil {
		closePub()
		_ = store.Close()

		return nil, err
	}

	store.SetEmitter(a.bus)
	a.pool.Start()

	logger.Info("signal bus ready",
		slog.String("store", cfg.Store.Driver),
		slog.String("broker", cfg.Broker.Kind),
		slog.Int("workers", cfg.Pool.Workers),
		slog.Bool("sync", cfg.Dispatch.Sync),
		slog.Int("subscriptions", a.bus.Len()),
	)

	return a, nil
}

func (a *app) recordFailure(ctx context.Context, f worker.Failure) {
	rec := orm.FailureRecord{Task: f.Task, Key: f.Key, Error: f.Err.Error()}
	if err := a.store.RecordFailure(ctx, rec); err != nil {
		a.logger.ErrorContext(ctx, "record failure", slog.String("task", f.Task), slog.Any("error", err))
	}
}

// wait blocks until every queued handler task has finished.
func (a *app) wait(ctx context.Context) error {
	var errs []error

	for _, d := range a.dispatchers {
		if err := d.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait %s: %w", d.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// close drains the pool, then releases the broker and the store.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if err := a.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop pool: %w", err))
	}

	a.closePublisher()

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}
