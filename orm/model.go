package orm

import (
	"time"

	"github.com/next-trace/scg-signal-bus/contract/signal"
)

// Model is a stored entity: a type tag, an identifier and free-form fields.
type Model struct {
	Type      signal.EntityType
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key orders asynchronous work for this entity.
func (m *Model) Key() string { return string(m.Type) + ":" + m.ID }

// Clone returns a copy whose Fields map is not shared with m.
func (m *Model) Clone() *Model {
	c := *m
	c.Fields = make(map[string]any, len(m.Fields))

	for k, v := range m.Fields {
		c.Fields[k] = v
	}

	return &c
}

// Snapshot is one change-log entry.
type Snapshot struct {
	ID        string
	Entity    signal.EntityType
	EntityID  string
	Operation signal.Operation
	EventID   string
	Data      map[string]any
	TakenAt   time.Time
}

// FailureRecord is a persisted handler failure.
type FailureRecord struct {
	ID       string
	Task     string
	Key      string
	Error    string
	FailedAt time.Time
}
