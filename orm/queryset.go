package orm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

// QuerySet selects entities of one type, optionally narrowed to a set of IDs.
// Its bulk operations write directly and fire no signals.
type QuerySet struct {
	store    *Store
	entity   signal.EntityType
	ids      []string
	filtered bool
}

// Entity returns the entity type the query set ranges over.
func (q *QuerySet) Entity() signal.EntityType { return q.entity }

// Key orders bulk work per entity type.
func (q *QuerySet) Key() string { return string(q.entity) }

// IDs returns the ID filter; nil means every entity of the type.
func (q *QuerySet) IDs() []string {
	if !q.filtered {
		return nil
	}

	return append([]string(nil), q.ids...)
}

// Filter narrows the query set to ids. Filtering twice keeps the intersection.
func (q *QuerySet) Filter(ids ...string) *QuerySet {
	next := &QuerySet{store: q.store, entity: q.entity, filtered: true}

	if !q.filtered {
		next.ids = append([]string(nil), ids...)
		return next
	}

	keep := make(map[string]struct{}, len(q.ids))
	for _, id := range q.ids {
		keep[id] = struct{}{}
	}

	for _, id := range ids {
		if _, ok := keep[id]; ok {
			next.ids = append(next.ids, id)
		}
	}

	return next
}

func (q *QuerySet) where() (string, []any) {
	clause := `entity_type = ?`
	args := []any{string(q.entity)}

	if q.filtered {
		if len(q.ids) == 0 {
			return clause + ` AND 1 = 0`, args
		}

		clause += ` AND id IN (` + placeholders(len(q.ids)) + `)`
		for _, id := range q.ids {
			args = append(args, id)
		}
	}

	return clause, args
}

// All loads every matching entity ordered by ID.
func (q *QuerySet) All(ctx context.Context) ([]*Model, error) {
	return q.all(ctx, q.store.db)
}

func (q *QuerySet) all(ctx context.Context, db querier) ([]*Model, error) {
	clause, args := q.where()

	rows, err := db.QueryContext(ctx,
		q.store.rebind(`SELECT entity_type, id, fields, created_at, updated_at FROM entities WHERE `+clause+` ORDER BY id`),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.entity, errors.Join(serr.ErrStoreFailed, err))
	}
	defer rows.Close()

	var out []*Model

	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.entity, err)
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.entity, errors.Join(serr.ErrStoreFailed, err))
	}

	return out, nil
}

// Count returns the number of matching entities.
func (q *QuerySet) Count(ctx context.Context) (int, error) {
	clause, args := q.where()

	var n int
	if err := q.store.db.QueryRowContext(ctx, q.store.rebind(`SELECT COUNT(*) FROM entities WHERE `+clause), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.entity, errors.Join(serr.ErrStoreFailed, err))
	}

	return n, nil
}

// Update merges values into the fields of every matching entity and returns the
// number of rows written. No per-row signal fires.
func (q *QuerySet) Update(ctx context.Context, values map[string]any) (int, error) {
	now := time.Now().UTC().UnixNano()
	n := 0

	err := q.store.inTx(ctx, func(tx *sql.Tx) error {
		models, err := q.all(ctx, tx)
		if err != nil {
			return err
		}

		for _, m := range models {
			for k, v := range values {
				m.Fields[k] = v
			}

			body, err := json.Marshal(m.Fields)
			if err != nil {
				return errors.Join(serr.ErrSerializationFailed, err)
			}

			if _, err := tx.ExecContext(ctx,
				q.store.rebind(`UPDATE entities SET fields = ?, updated_at = ? WHERE entity_type = ? AND id = ?`),
				string(body), now, string(m.Type), m.ID,
			); err != nil {
				return errors.Join(serr.ErrStoreFailed, err)
			}

			n++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", q.entity, err)
	}

	return n, nil
}

// BulkCreate inserts copies of models as entities of the query set's type and
// returns how many rows were written. Identifiers of the new rows are not reported
// and no signal fires.
func (q *QuerySet) BulkCreate(ctx context.Context, models []*Model) (int, error) {
	now := time.Now().UTC().UnixNano()

	err := q.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range models {
			id := m.ID
			if id == "" {
				id = uuid.NewString()
			}

			body, err := json.Marshal(fieldsOrEmpty(m.Fields))
			if err != nil {
				return errors.Join(serr.ErrSerializationFailed, err)
			}

			if _, err := tx.ExecContext(ctx,
				q.store.rebind(`INSERT INTO entities (entity_type, id, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
				string(q.entity), id, string(body), now, now,
			); err != nil {
				return errors.Join(serr.ErrStoreFailed, err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bulk create %s: %w", q.entity, err)
	}

	return len(models), nil
}
