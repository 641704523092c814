package handlers

import (
	"errors"
	"log/slog"

	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/signalbus"
	"github.com/next-trace/scg-signal-bus/worker"
)

// Declaration is a handler together with its static registration.
type Declaration struct {
	Handler signal.Handler
	Options signalbus.Options
}

// Deps are the collaborators of the shipped handlers. Nil fields turn the
// corresponding handler into a no-op.
type Deps struct {
	Publisher  signal.Publisher
	Propagator signal.HeaderPropagator
	Snapshots  SnapshotWriter
	Logger     *slog.Logger
	// Sync runs both handlers in the emitter's stack instead of on the pool.
	Sync bool
}

// Declarations returns the shipped handlers in registration order.
func Declarations(deps Deps) []Declaration {
	async := !deps.Sync

	return []Declaration{
		{
			Handler: NewEmailHandler(deps.Publisher, WithPropagator(deps.Propagator), WithEmailLogger(deps.Logger)),
			Options: signalbus.Options{Name: EmailName, Async: async, Handling: EmailHandling(), Logger: deps.Logger},
		},
		{
			Handler: NewChangeLogHandler(deps.Snapshots),
			Options: signalbus.Options{Name: ChangeLogName, Async: async, Handling: ChangeLogHandling(), Logger: deps.Logger},
		},
	}
}

// RegisterAll connects every shipped handler to b.
func RegisterAll(b *signalbus.Bus, pool *worker.Pool, deps Deps) ([]*signalbus.Dispatcher, error) {
	decls := Declarations(deps)
	out := make([]*signalbus.Dispatcher, 0, len(decls))

	var errs []error

	for _, d := range decls {
		disp, err := signalbus.Register(b, pool, d.Handler, d.Options)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		out = append(out, disp)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return out, nil
}
