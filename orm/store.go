package orm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Emitter receives lifecycle signals. *signalbus.Bus satisfies it.
type Emitter interface {
	Send(ctx context.Context, ev signal.Event) error
}

type nopEmitter struct{}

func (nopEmitter) Send(context.Context, signal.Event) error { return nil }

// Option configures a Store.
type Option func(*Store)

// WithEmitter routes lifecycle signals to e.
func WithEmitter(e Emitter) Option {
	return func(s *Store) {
		if e != nil {
			s.emit = e
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store encapsulates database access and fires native save/delete signals.
type Store struct {
	db     *sql.DB
	driver string
	emit   Emitter
	logger *slog.Logger
}

const memoryDSN = ":memory:"

// Open opens a database with driver ("sqlite3" or "pgx") and verifies the connection.
// The SQLite ":memory:" DSN is held on a single connection.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open store: empty dsn: %w", serr.ErrStoreFailed)
	}

	if driver == DriverSQLite && !strings.HasPrefix(dsn, "file:") && dsn != memoryDSN {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, errors.Join(serr.ErrStoreFailed, err))
	}

	// every new connection to :memory: gets its own empty database
	if dsn == memoryDSN {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, errors.Join(serr.ErrStoreFailed, err))
	}

	return New(db, driver, opts...)
}

// New wraps an already opened database.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("new store: nil db: %w", serr.ErrStoreFailed)
	}

	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("new store: unsupported driver %q: %w", driver, serr.ErrStoreFailed)
	}

	s := &Store{db: db, driver: driver, emit: nopEmitter{}, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	return s, nil
}

// SetEmitter replaces the signal emitter. It must be called before the store is shared.
func (s *Store) SetEmitter(e Emitter) { WithEmitter(e)(s) }

// Migrate creates the tables. It is safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", errors.Join(serr.ErrStoreFailed, err))
		}
	}

	return nil
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Objects returns the native query set over every entity of type entity.
func (s *Store) Objects(entity signal.EntityType) *QuerySet {
	return &QuerySet{store: s, entity: entity}
}

// Save inserts m when it is new and updates it otherwise, then fires the save
// signal inside the same transaction. A signal error rolls the write back.
// An empty ID is assigned a uuid.
func (s *Store) Save(ctx context.Context, m *Model) (created bool, err error) {
	if m == nil || m.Type == "" {
		return false, fmt.Errorf("save: %w", serr.ErrStoreFailed)
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	body, err := json.Marshal(fieldsOrEmpty(m.Fields))
	if err != nil {
		return false, fmt.Errorf("save %s: %w", m.Key(), errors.Join(serr.ErrSerializationFailed, err))
	}

	now := time.Now().UTC()

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var createdAt int64

		row := tx.QueryRowContext(ctx, s.rebind(`SELECT created_at FROM entities WHERE entity_type = ? AND id = ?`), string(m.Type), m.ID)

		switch scanErr := row.Scan(&createdAt); {
		case errors.Is(scanErr, sql.ErrNoRows):
			created = true
			if _, err := tx.ExecContext(ctx,
				s.rebind(`INSERT INTO entities (entity_type, id, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
				string(m.Type), m.ID, string(body), now.UnixNano(), now.UnixNano(),
			); err != nil {
				return err
			}

			m.CreatedAt = now
		case scanErr != nil:
			return scanErr
		default:
			if _, err := tx.ExecContext(ctx,
				s.rebind(`UPDATE entities SET fields = ?, updated_at = ? WHERE entity_type = ? AND id = ?`),
				string(body), now.UnixNano(), string(m.Type), m.ID,
			); err != nil {
				return err
			}

			m.CreatedAt = time.Unix(0, createdAt).UTC()
		}

		m.UpdatedAt = now

		return s.emit.Send(ctx, signal.Event{
			Kind:     signal.KindSave,
			Sender:   m.Type,
			Instance: m.Clone(),
			Created:  created,
		})
	})
	if err != nil {
		return false, fmt.Errorf("save %s: %w", m.Key(), err)
	}

	return created, nil
}

// Delete fires the delete signal and removes m, in one transaction.
// The signal carries the stored state of the entity.
func (s *Store) Delete(ctx context.Context, m *Model) error {
	if m == nil || m.Type == "" || m.ID == "" {
		return fmt.Errorf("delete: %w", serr.ErrNotFound)
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stored, err := s.get(ctx, tx, m.Type, m.ID)
		if err != nil {
			return err
		}

		if err := s.emit.Send(ctx, signal.Event{
			Kind:     signal.KindDelete,
			Sender:   m.Type,
			Instance: stored,
		}); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM entities WHERE entity_type = ? AND id = ?`), string(m.Type), m.ID)

		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", m.Key(), err)
	}

	return nil
}

// Get loads one entity.
func (s *Store) Get(ctx context.Context, entity signal.EntityType, id string) (*Model, error) {
	return s.get(ctx, s.db, entity, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) get(ctx context.Context, q querier, entity signal.EntityType, id string) (*Model, error) {
	row := q.QueryRowContext(ctx,
		s.rebind(`SELECT entity_type, id, fields, created_at, updated_at FROM entities WHERE entity_type = ? AND id = ?`),
		string(entity), id,
	)

	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s:%s: %w", entity, id, serr.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("get %s:%s: %w", entity, id, errors.Join(serr.ErrStoreFailed, err))
	}

	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(r scanner) (*Model, error) {
	var (
		entity, id, body     string
		createdAt, updatedAt int64
	)

	if err := r.Scan(&entity, &id, &body, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, errors.Join(serr.ErrSerializationFailed, err)
	}

	return &Model{
		Type:      signal.EntityType(entity),
		ID:        id,
		Fields:    fields,
		CreatedAt: time.Unix(0, createdAt).UTC(),
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(serr.ErrStoreFailed, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WarnContext(ctx, "rollback failed", slog.Any("error", rbErr))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Join(serr.ErrStoreFailed, err)
	}

	return nil
}

// rebind rewrites '?' placeholders to the driver's style.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

func fieldsOrEmpty(f map[string]any) map[string]any {
	if f == nil {
		return map[string]any{}
	}

	return f
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}

	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
