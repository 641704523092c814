package signalbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/observability"
)

// Bus is an in-process publish/subscribe registry keyed by (kind, entity type).
// Wildcard subscriptions match every entity type for their kind.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[subKey][]subscription

	logger *slog.Logger
}

type subKey struct {
	kind   signal.Kind
	entity signal.EntityType
}

type subscription struct {
	seq  uint64
	name string
	key  subKey
	recv signal.Receiver
}

// Subscription describes one connected receiver.
type Subscription struct {
	Name   string
	Kind   signal.Kind
	Entity signal.EntityType
}

// New constructs an empty Bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		subs:   make(map[subKey][]subscription),
		logger: logger,
	}
}

// Connect subscribes recv to kind for entity. Passing signal.AllEntities subscribes
// without a type filter. Duplicate subscriptions are kept side by side.
func (b *Bus) Connect(kind signal.Kind, entity signal.EntityType, name string, recv signal.Receiver) error {
	if !kind.Valid() {
		return fmt.Errorf("connect %s to %q: %w", name, kind, serr.ErrUnknownSignal)
	}

	if recv == nil || entity == "" {
		return fmt.Errorf("connect %s to %s/%s: %w", name, kind, entity, serr.ErrInvalidBinding)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	key := subKey{kind: kind, entity: entity}
	b.subs[key] = append(b.subs[key], subscription{seq: b.seq, name: name, key: key, recv: recv})

	return nil
}

// Receivers lists the subscriptions a (kind, entity) signal reaches, in registration order.
func (b *Bus) Receivers(kind signal.Kind, entity signal.EntityType) []Subscription {
	matched := b.match(kind, entity)

	out := make([]Subscription, 0, len(matched))
	for _, s := range matched {
		out = append(out, Subscription{Name: s.name, Kind: s.key.kind, Entity: s.key.entity})
	}

	return out
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, s := range b.subs {
		n += len(s)
	}

	return n
}

func (b *Bus) match(kind signal.Kind, entity signal.EntityType) []subscription {
	b.mu.RLock()
	own := b.subs[subKey{kind: kind, entity: entity}]
	var wild []subscription
	if !entity.IsWildcard() {
		wild = b.subs[subKey{kind: kind, entity: signal.AllEntities}]
	}
	matched := make([]subscription, 0, len(own)+len(wild))
	matched = append(matched, own...)
	matched = append(matched, wild...)
	b.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	return matched
}

// Send delivers ev to every matching receiver in registration order.
// Missing ID and timestamp are filled in. All receiver errors are aggregated with errors.Join.
func (b *Bus) Send(ctx context.Context, ev signal.Event) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("send %q from %s: %w", ev.Kind, ev.Sender, serr.ErrUnknownSignal)
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	observability.SignalSent(string(ev.Kind), string(ev.Sender))

	subs := b.match(ev.Kind, ev.Sender)
	if len(subs) == 0 {
		return nil
	}

	b.logger.DebugContext(ctx, "signal",
		slog.String("kind", string(ev.Kind)),
		slog.String("entity", string(ev.Sender)),
		slog.String("event_id", ev.ID),
		slog.Int("receivers", len(subs)),
	)

	var errs []error

	for _, s := range subs {
		if err := s.recv(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
