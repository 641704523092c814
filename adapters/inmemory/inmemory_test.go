package inmemory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/next-trace/scg-signal-bus/adapters/inmemory"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

func TestInmemory_PublishRecords(t *testing.T) {
	p := inmemory.New()

	if err := p.Publish(t.Context(), signal.Message{Topic: "a", Key: "k", Body: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := p.Publish(t.Context(), signal.Message{Topic: "b"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if n := len(p.Messages()); n != 2 {
		t.Fatalf("want 2 messages, got %d", n)
	}

	if got := p.Topic("a"); len(got) != 1 || got[0].Key != "k" {
		t.Fatalf("topic a=%v", got)
	}

	p.Reset()

	if n := len(p.Messages()); n != 0 {
		t.Fatalf("reset left %d messages", n)
	}
}

func TestInmemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	p := inmemory.New()
	if err := p.Publish(ctx, signal.Message{Topic: "a"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestInmemory_ConcurrentSafety(t *testing.T) {
	p := inmemory.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = p.Publish(t.Context(), signal.Message{Topic: "t"})
		}()
	}

	wg.Wait()

	if n := len(p.Messages()); n != 50 {
		t.Fatalf("messages=%d", n)
	}
}
