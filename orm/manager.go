package orm

import (
	"context"
	"fmt"

	"github.com/next-trace/scg-signal-bus/contract/signal"
)

// Manager hands out signaling query sets for one entity type.
// Entity types that want bulk updates observed go through a Manager instead of Store.Objects.
type Manager struct {
	store  *Store
	entity signal.EntityType
}

// NewManager returns a Manager over entity using the store's emitter.
func NewManager(s *Store, entity signal.EntityType) *Manager {
	return &Manager{store: s, entity: entity}
}

// Entity returns the managed entity type.
func (m *Manager) Entity() signal.EntityType { return m.entity }

// Query returns a signaling query set over every entity of the managed type.
func (m *Manager) Query() *SignalQuerySet {
	return &SignalQuerySet{QuerySet: m.store.Objects(m.entity)}
}

// Filter is shorthand for Query().Filter(ids...).
func (m *Manager) Filter(ids ...string) *SignalQuerySet { return m.Query().Filter(ids...) }

// SignalQuerySet is a QuerySet whose Update additionally emits a bulk-update signal.
// BulkCreate is inherited unchanged and stays unsignalled.
type SignalQuerySet struct {
	*QuerySet
}

// Filter narrows the set and keeps it signaling.
func (q *SignalQuerySet) Filter(ids ...string) *SignalQuerySet {
	return &SignalQuerySet{QuerySet: q.QuerySet.Filter(ids...)}
}

// Update runs the native bulk update, then emits exactly one bulk-update signal
// carrying this query set and the applied values. The write is committed before
// the signal fires, so a failing synchronous handler reports an error but does
// not undo it.
func (q *SignalQuerySet) Update(ctx context.Context, values map[string]any) (int, error) {
	n, err := q.QuerySet.Update(ctx, values)
	if err != nil {
		return n, err
	}

	applied := make(map[string]any, len(values))
	for k, v := range values {
		applied[k] = v
	}

	if err := q.store.emit.Send(ctx, signal.Event{
		Kind:     signal.KindBulkUpdate,
		Sender:   q.entity,
		Instance: q,
		Fields:   applied,
		Meta:     map[string]any{"rows": n},
	}); err != nil {
		return n, fmt.Errorf("bulk update %s: %w", q.entity, err)
	}

	return n, nil
}
