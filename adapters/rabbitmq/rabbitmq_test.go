package rabbitmq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-signal-bus/adapters/rabbitmq"
	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

type fakePublisher struct {
	calls []rabbitmq.PubMsg
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, m rabbitmq.PubMsg) error {
	_ = ctx
	f.calls = append(f.calls, m)

	return f.err
}

type stamp struct{}

func (stamp) Inject(_ context.Context, h map[string]string) { h["traceparent"] = "00-abc" }

func TestRabbitMQ_Publish(t *testing.T) {
	fp := &fakePublisher{}
	ad := rabbitmq.NewWithPropagator(fp, stamp{})

	msg := signal.Message{
		Topic:   "notifications.testcase.delete",
		Key:     "TestCase:5",
		Body:    map[string]string{"subject": "gone"},
		Headers: map[string]string{"ph": "pv"},
	}
	if err := ad.Publish(t.Context(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(fp.calls) != 1 {
		t.Fatalf("want 1, got %d", len(fp.calls))
	}

	c := fp.calls[0]
	if c.Exchange != rabbitmq.DefaultExchange || c.RoutingKey != "notifications.testcase.delete" {
		t.Fatalf("routing: %q %q", c.Exchange, c.RoutingKey)
	}

	if string(c.Body) != `{"subject":"gone"}` {
		t.Fatalf("body: %s", c.Body)
	}

	if c.Headers["ph"] != "pv" || c.Headers["key"] != "TestCase:5" || c.Headers["traceparent"] != "00-abc" {
		t.Fatalf("headers: %+v", c.Headers)
	}

	if len(msg.Headers) != 1 {
		t.Fatalf("caller headers mutated: %+v", msg.Headers)
	}
}

func TestRabbitMQ_NilPublisherError(t *testing.T) {
	ad := rabbitmq.New(nil)
	if err := ad.Publish(t.Context(), signal.Message{Topic: "t"}); !errors.Is(err, serr.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
}

func TestRabbitMQ_Publish_ErrorWrapping_And_ContextCancel(t *testing.T) {
	fp := &fakePublisher{err: errors.New("boom")}
	ad := rabbitmq.New(fp)

	if err := ad.Publish(t.Context(), signal.Message{Topic: "t"}); !errors.Is(err, serr.ErrPublishFailed) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	fp2 := &fakePublisher{err: context.Canceled}
	ad2 := rabbitmq.New(fp2)

	err := ad2.Publish(t.Context(), signal.Message{Topic: "t"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestRabbitMQ_CanceledBeforePublish(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	fp := &fakePublisher{}
	if err := rabbitmq.New(fp).Publish(ctx, signal.Message{Topic: "t"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if len(fp.calls) != 0 {
		t.Fatalf("publisher should not be called")
	}
}
