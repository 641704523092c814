package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/handlers"
	"github.com/next-trace/scg-signal-bus/orm"
)

func TestNewMemoryEnv_BasicFlow(t *testing.T) {
	env, cleanup, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer cleanup()

	if n := env.Bus.Len(); n != 18 {
		t.Fatalf("expected 18 subscriptions, got %d", n)
	}

	ev := signal.Event{
		Kind:     signal.KindSave,
		Sender:   handlers.EntityTestCase,
		Created:  true,
		Instance: &orm.Model{Type: handlers.EntityTestCase, ID: "1", Fields: map[string]any{"notify": "qa@example.com"}},
	}
	if err := env.Bus.Send(t.Context(), ev); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	if err := env.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if got := env.Publisher.Topic("notifications.testcase.create"); len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
}

func TestNewMemoryEnv_WithStore(t *testing.T) {
	st, err := orm.Open(orm.DriverSQLite, filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(t.Context()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	env, cleanup, err := New(WithStore(st), WithWorkers(1, 8))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer cleanup()

	if _, err := st.Save(t.Context(), &orm.Model{Type: "Build", ID: "b1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	if err := env.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	log, err := st.ChangeLog(t.Context(), "Build", "b1")
	if err != nil || len(log) != 1 {
		t.Fatalf("changelog=%v err=%v", log, err)
	}

	// only test-management entities are mailed
	if n := len(env.Publisher.Messages()); n != 0 {
		t.Fatalf("unexpected notifications: %d", n)
	}
}

func TestNewMemoryEnv_SyncRejectsSQLite(t *testing.T) {
	st, err := orm.Open(orm.DriverSQLite, filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	env, cleanup, err := New(WithStore(st), WithSync())
	if !errors.Is(err, serr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}

	if env != nil || cleanup != nil {
		t.Fatalf("expected no env on rejected options")
	}
}
