package signal

import "time"

// MetaOperation is the Meta key mirroring Event.Operation once classified.
const MetaOperation = "operation"

// Event is an ephemeral change notification. It exists only for the duration of dispatch.
//
// Instance is the source entity for save/delete events and the affected query set
// for bulk updates. Fields carries the values applied by a bulk update.
type Event struct {
	ID         string
	Kind       Kind
	Sender     EntityType
	Instance   any
	Created    bool
	Fields     map[string]any
	Operation  Operation
	Meta       map[string]any
	OccurredAt time.Time
}

// Keyed is implemented by instances that can name the entity they refer to.
// The key orders asynchronous work for the same entity.
type Keyed interface {
	Key() string
}

// ShardKey returns the ordering key for the event: the entity key when the
// instance exposes one, the sender type otherwise.
func (e Event) ShardKey() string {
	if k, ok := e.Instance.(Keyed); ok {
		if key := k.Key(); key != "" {
			return key
		}
	}

	return string(e.Sender)
}

// WithOperation returns a copy of e labelled with op. Meta is copied, not shared.
func (e Event) WithOperation(op Operation) Event {
	meta := make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}

	meta[MetaOperation] = string(op)
	e.Meta = meta
	e.Operation = op

	return e
}
