package orm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

// AppendChangeLog persists one snapshot.
func (s *Store) AppendChangeLog(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(fieldsOrEmpty(snap.Data))
	if err != nil {
		return fmt.Errorf("changelog %s:%s: %w", snap.Entity, snap.EntityID, errors.Join(serr.ErrSerializationFailed, err))
	}

	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}

	if _, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO changelog (id, entity_type, entity_id, operation, event_id, snapshot, taken_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		snap.ID, string(snap.Entity), snap.EntityID, string(snap.Operation), snap.EventID, string(body), snap.TakenAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("changelog %s:%s: %w", snap.Entity, snap.EntityID, errors.Join(serr.ErrStoreFailed, err))
	}

	return nil
}

// ChangeLog returns the snapshots of one entity, oldest first.
func (s *Store) ChangeLog(ctx context.Context, entity signal.EntityType, id string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, entity_type, entity_id, operation, event_id, snapshot, taken_at FROM changelog WHERE entity_type = ? AND entity_id = ? ORDER BY taken_at, id`),
		string(entity), id,
	)
	if err != nil {
		return nil, fmt.Errorf("changelog %s:%s: %w", entity, id, errors.Join(serr.ErrStoreFailed, err))
	}
	defer rows.Close()

	var out []Snapshot

	for rows.Next() {
		var (
			snap          Snapshot
			ent, op, body string
			taken         int64
		)

		if err := rows.Scan(&snap.ID, &ent, &snap.EntityID, &op, &snap.EventID, &body, &taken); err != nil {
			return nil, fmt.Errorf("changelog %s:%s: %w", entity, id, errors.Join(serr.ErrStoreFailed, err))
		}

		snap.Entity = signal.EntityType(ent)
		snap.Operation = signal.Operation(op)
		snap.TakenAt = time.Unix(0, taken).UTC()

		if err := json.Unmarshal([]byte(body), &snap.Data); err != nil {
			return nil, fmt.Errorf("changelog %s:%s: %w", entity, id, errors.Join(serr.ErrSerializationFailed, err))
		}

		out = append(out, snap)
	}

	return out, rows.Err()
}

// RecordFailure persists a handler failure.
func (s *Store) RecordFailure(ctx context.Context, f FailureRecord) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}

	if _, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO signal_failures (id, task, task_key, error, failed_at) VALUES (?, ?, ?, ?, ?)`),
		f.ID, f.Task, f.Key, f.Error, f.FailedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("record failure %s: %w", f.Task, errors.Join(serr.ErrStoreFailed, err))
	}

	return nil
}

// Failures returns the most recent failures, newest first. limit <= 0 means 100.
func (s *Store) Failures(ctx context.Context, limit int) ([]FailureRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, task, task_key, error, failed_at FROM signal_failures ORDER BY failed_at DESC LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failures: %w", errors.Join(serr.ErrStoreFailed, err))
	}
	defer rows.Close()

	var out []FailureRecord

	for rows.Next() {
		var (
			f  FailureRecord
			at int64
		)

		if err := rows.Scan(&f.ID, &f.Task, &f.Key, &f.Error, &at); err != nil {
			return nil, fmt.Errorf("failures: %w", errors.Join(serr.ErrStoreFailed, err))
		}

		f.FailedAt = time.Unix(0, at).UTC()
		out = append(out, f)
	}

	return out, rows.Err()
}
