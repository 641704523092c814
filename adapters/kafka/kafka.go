package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/observability"
)

const adapterName = "kafka"

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Adapter implements signal.Publisher using an injected Writer.
type Adapter struct {
	Writer Writer
	// Prefix is prepended to every topic.
	Prefix string
}

var _ signal.Publisher = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided writer.
func New(w Writer) *Adapter { return &Adapter{Writer: w} }

func (a *Adapter) Publish(ctx context.Context, msg signal.Message) error {
	err := a.publish(ctx, msg)
	observability.Published(adapterName, err)

	return err
}

func (a *Adapter) publish(ctx context.Context, msg signal.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka publish: %w", serr.ErrPublishFailed)
	}

	val, err := json.Marshal(msg.Body)
	if err != nil {
		return fmt.Errorf("kafka publish serialize: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	ctx, span := observability.StartSpan(ctx, "kafka.publish")

	headers := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}

	observability.Propagator{}.Inject(ctx, headers)

	var key []byte
	if msg.Key != "" {
		key = []byte(msg.Key)
	}

	err = a.Writer.Write(ctx, a.Prefix+msg.Topic, key, val, headers)
	observability.EndSpan(span, err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka publish write %q: %w", msg.Topic, errors.Join(serr.ErrPublishFailed, err))
	}

	return nil
}
