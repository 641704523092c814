package orm_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/orm"
)

// fakeEmitter records every signal and optionally fails.
type fakeEmitter struct {
	mu     sync.Mutex
	events []signal.Event
	err    error
}

func (f *fakeEmitter) Send(_ context.Context, ev signal.Event) error {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()

	return f.err
}

func (f *fakeEmitter) recorded() []signal.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]signal.Event(nil), f.events...)
}

func newStore(t *testing.T, em orm.Emitter) *orm.Store {
	t.Helper()

	s, err := orm.Open(orm.DriverSQLite, filepath.Join(t.TempDir(), "signals.db"), orm.WithEmitter(em))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// idempotent
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	return s
}

func TestOpen_Errors(t *testing.T) {
	if _, err := orm.Open(orm.DriverSQLite, ""); !errors.Is(err, serr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed for empty dsn, got %v", err)
	}

	if _, err := orm.New(nil, orm.DriverSQLite); !errors.Is(err, serr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed for nil db, got %v", err)
	}
}

func TestStore_SaveEmitsCreatedThenUpdated(t *testing.T) {
	em := &fakeEmitter{}
	s := newStore(t, em)

	m := &orm.Model{Type: "TestPlan", Fields: map[string]any{"name": "smoke"}}

	created, err := s.Save(t.Context(), m)
	if err != nil || !created {
		t.Fatalf("first save created=%v err=%v", created, err)
	}

	if m.ID == "" {
		t.Fatalf("id not assigned")
	}

	m.Fields["name"] = "regression"

	created, err = s.Save(t.Context(), m)
	if err != nil || created {
		t.Fatalf("second save created=%v err=%v", created, err)
	}

	evs := em.recorded()
	if len(evs) != 2 {
		t.Fatalf("want 2 signals, got %d", len(evs))
	}

	if evs[0].Kind != signal.KindSave || !evs[0].Created || evs[1].Created {
		t.Fatalf("signals=%+v", evs)
	}

	inst, ok := evs[1].Instance.(*orm.Model)
	if !ok || inst.ID != m.ID || inst.Fields["name"] != "regression" {
		t.Fatalf("instance=%#v", evs[1].Instance)
	}

	// the payload is a copy
	m.Fields["name"] = "mutated"
	if inst.Fields["name"] != "regression" {
		t.Fatalf("payload shares caller's map")
	}

	got, err := s.Get(t.Context(), "TestPlan", m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Fields["name"] != "regression" || got.CreatedAt.IsZero() || got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("stored=%+v", got)
	}
}

func TestStore_SignalErrorRollsBackSave(t *testing.T) {
	boom := errors.New("handler refused")
	em := &fakeEmitter{err: boom}
	s := newStore(t, em)

	m := &orm.Model{Type: "TestCase", ID: "c1", Fields: map[string]any{"summary": "x"}}

	if _, err := s.Save(t.Context(), m); !errors.Is(err, boom) {
		t.Fatalf("want handler error, got %v", err)
	}

	if _, err := s.Get(t.Context(), "TestCase", "c1"); !errors.Is(err, serr.ErrNotFound) {
		t.Fatalf("row should have been rolled back, got %v", err)
	}
}

func TestStore_DeleteEmitsBeforeRemoval(t *testing.T) {
	em := &fakeEmitter{}
	s := newStore(t, em)

	m := &orm.Model{Type: "TestRun", ID: "r1", Fields: map[string]any{"status": "running"}}
	if _, err := s.Save(t.Context(), m); err != nil {
		t.Fatalf("save: %v", err)
	}

	// a refusing handler keeps the row
	em.err = errors.New("keep it")
	if err := s.Delete(t.Context(), &orm.Model{Type: "TestRun", ID: "r1"}); err == nil {
		t.Fatalf("expected delete to abort")
	}

	if _, err := s.Get(t.Context(), "TestRun", "r1"); err != nil {
		t.Fatalf("row should survive aborted delete: %v", err)
	}

	em.err = nil
	if err := s.Delete(t.Context(), &orm.Model{Type: "TestRun", ID: "r1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	evs := em.recorded()
	last := evs[len(evs)-1]

	if last.Kind != signal.KindDelete {
		t.Fatalf("last signal=%s", last.Kind)
	}

	if inst := last.Instance.(*orm.Model); inst.Fields["status"] != "running" {
		t.Fatalf("delete payload should carry stored state: %+v", inst)
	}

	if _, err := s.Get(t.Context(), "TestRun", "r1"); !errors.Is(err, serr.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := s.Delete(t.Context(), &orm.Model{Type: "TestRun", ID: "missing"}); !errors.Is(err, serr.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestStore_ChangeLogAndFailures(t *testing.T) {
	s := newStore(t, nil)

	snap := orm.Snapshot{
		ID:        "2AbCdEf",
		Entity:    "TestPlan",
		EntityID:  "p1",
		Operation: signal.OperationCreate,
		EventID:   "ev-1",
		Data:      map[string]any{"name": "smoke"},
	}
	if err := s.AppendChangeLog(t.Context(), snap); err != nil {
		t.Fatalf("append: %v", err)
	}

	log, err := s.ChangeLog(t.Context(), "TestPlan", "p1")
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}

	if len(log) != 1 || log[0].Data["name"] != "smoke" || log[0].Operation != signal.OperationCreate {
		t.Fatalf("log=%+v", log)
	}

	if err := s.RecordFailure(t.Context(), orm.FailureRecord{Task: "email.create", Key: "TestPlan:p1", Error: "smtp down"}); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	fs, err := s.Failures(t.Context(), 0)
	if err != nil {
		t.Fatalf("failures: %v", err)
	}

	if len(fs) != 1 || fs[0].Task != "email.create" || fs[0].ID == "" {
		t.Fatalf("failures=%+v", fs)
	}
}

func TestOpen_InMemorySharesOneDatabase(t *testing.T) {
	s, err := orm.Open(orm.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	const n = 8

	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := s.Save(context.Background(), &orm.Model{Type: "TestCase", Fields: map[string]any{"i": i}}); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Objects("TestCase").Count(t.Context())
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	if got != n {
		t.Fatalf("want %d rows, got %d", n, got)
	}
}
