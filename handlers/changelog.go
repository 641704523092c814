package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/orm"
	"github.com/next-trace/scg-signal-bus/signalbus"
)

// ChangeLogName is the registration name of ChangeLogHandler.
const ChangeLogName = "changelog"

// SnapshotWriter persists change-log entries. *orm.Store implements it.
type SnapshotWriter interface {
	AppendChangeLog(ctx context.Context, snap orm.Snapshot) error
}

// ChangeLogHandler snapshots every changed entity of any type.
type ChangeLogHandler struct {
	w SnapshotWriter
}

// NewChangeLogHandler returns a handler writing to w. A nil w makes every callback a no-op.
func NewChangeLogHandler(w SnapshotWriter) *ChangeLogHandler {
	return &ChangeLogHandler{w: w}
}

// ChangeLogHandling subscribes to every kind on every entity type.
func ChangeLogHandling() signal.Handling {
	return signal.Handling{
		{Entity: signal.AllEntities, Kinds: []signal.Kind{signal.KindSave, signal.KindBulkUpdate, signal.KindDelete}},
	}
}

func (h *ChangeLogHandler) Create(ctx context.Context, ev signal.Event) error {
	return h.Generic(ctx, ev)
}

func (h *ChangeLogHandler) Update(ctx context.Context, ev signal.Event) error {
	return h.Generic(ctx, ev)
}

func (h *ChangeLogHandler) Delete(ctx context.Context, ev signal.Event) error {
	return h.Generic(ctx, ev)
}

// Generic writes one snapshot per affected entity. Unlabelled events are
// classified, falling back to update.
func (h *ChangeLogHandler) Generic(ctx context.Context, ev signal.Event) error {
	if h.w == nil {
		return nil
	}

	models, err := affected(ctx, ev)
	if err != nil {
		return err
	}

	op := ev.Operation
	if op == "" {
		op = signal.OperationUpdate
		if c, err := signalbus.Classify(ev); err == nil {
			op = c
		}
	}

	now := time.Now().UTC()

	var errs []error

	for _, m := range models {
		id, err := ksuid.NewRandomWithTime(now)
		if err != nil {
			return fmt.Errorf("snapshot id: %w", err)
		}

		data := make(map[string]any, len(m.Fields))
		for k, v := range m.Fields {
			data[k] = v
		}

		snap := orm.Snapshot{
			ID:        id.String(),
			Entity:    m.Type,
			EntityID:  m.ID,
			Operation: op,
			EventID:   ev.ID,
			Data:      data,
			TakenAt:   now,
		}

		if err := h.w.AppendChangeLog(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
