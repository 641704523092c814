package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-signal-bus/adapters/kafka"
	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

type fakeWriter struct {
	calls []struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}
	err error
}

func (f *fakeWriter) Write(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.calls = append(f.calls, struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}{topic, key, value, headers})

	return f.err
}

type notice struct{ Subject string }

func TestKafka_Publish(t *testing.T) {
	fw := &fakeWriter{}
	ad := kafka.New(fw)

	msg := signal.Message{
		Topic:   "notifications.testrun.update",
		Key:     "TestRun:3",
		Body:    notice{Subject: "s"},
		Headers: map[string]string{"ph": "pv"},
	}
	if err := ad.Publish(t.Context(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(fw.calls) != 1 {
		t.Fatalf("want 1, got %d", len(fw.calls))
	}

	p := fw.calls[0]
	if p.topic != "notifications.testrun.update" {
		t.Fatalf("topic: %s", p.topic)
	}

	if string(p.key) != "TestRun:3" {
		t.Fatalf("key: %s", string(p.key))
	}

	if string(p.value) != `{"Subject":"s"}` {
		t.Fatalf("value: %s", p.value)
	}

	if p.headers["ph"] != "pv" {
		t.Fatalf("pub headers: %+v", p.headers)
	}
}

func TestKafka_EmptyKeyAndPrefix(t *testing.T) {
	fw := &fakeWriter{}
	ad := kafka.New(fw)
	ad.Prefix = "prod."

	if err := ad.Publish(t.Context(), signal.Message{Topic: "t"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if fw.calls[0].topic != "prod.t" || fw.calls[0].key != nil {
		t.Fatalf("call: %+v", fw.calls[0])
	}
}

func TestKafka_NilWriterError(t *testing.T) {
	ad := kafka.New(nil)
	if err := ad.Publish(t.Context(), signal.Message{Topic: "t"}); !errors.Is(err, serr.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
}

func TestKafka_WriteErrors(t *testing.T) {
	ad := kafka.New(&fakeWriter{err: errors.New("leader not available")})
	if err := ad.Publish(t.Context(), signal.Message{Topic: "t"}); !errors.Is(err, serr.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}

	ad = kafka.New(&fakeWriter{err: context.DeadlineExceeded})
	if err := ad.Publish(t.Context(), signal.Message{Topic: "t"}); !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, serr.ErrPublishFailed) {
		t.Fatalf("expected bare deadline error, got %v", err)
	}
}

func TestNewWithKgo_Validation(t *testing.T) {
	if _, _, err := kafka.NewWithKgo(kafka.Config{}); !errors.Is(err, serr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed for no brokers, got %v", err)
	}

	_, _, err := kafka.NewWithKgo(kafka.Config{
		Brokers: []string{"localhost:9092"},
		SASL:    &kafka.SASLConfig{Mechanism: "GSSAPI"},
	})
	if !errors.Is(err, serr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed for unsupported SASL, got %v", err)
	}
}

func TestNewWithKgo_SASLMechanisms(t *testing.T) {
	for _, mech := range []string{"PLAIN", "scram-sha-256", "SCRAM-SHA-512"} {
		t.Run(mech, func(t *testing.T) {
			ad, cleanup, err := kafka.NewWithKgo(kafka.Config{
				Brokers:     []string{"localhost:9092"},
				TopicPrefix: "qa.",
				SASL:        &kafka.SASLConfig{Mechanism: mech, Username: "signald", Password: "secret"},
			})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			defer cleanup()

			if ad.Prefix != "qa." {
				t.Fatalf("prefix=%q", ad.Prefix)
			}
		})
	}
}
