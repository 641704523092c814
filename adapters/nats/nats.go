package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/observability"
)

const adapterName = "nats"

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
}

// Adapter implements signal.Publisher using an injected NATS-like Client.
type Adapter struct {
	Client Client
	// Prefix is prepended to every topic to form the subject.
	Prefix string
}

// Ensure Adapter implements the contract.
var _ signal.Publisher = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c} }

func (a *Adapter) Publish(ctx context.Context, msg signal.Message) error {
	err := a.publish(ctx, msg)
	observability.Published(adapterName, err)

	return err
}

func (a *Adapter) publish(ctx context.Context, msg signal.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats publish: %w", serr.ErrPublishFailed)
	}

	body, err := json.Marshal(msg.Body)
	if err != nil {
		return fmt.Errorf("nats publish serialize: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	ctx, span := observability.StartSpan(ctx, "nats.publish")

	headers := publishHeaders(msg)
	observability.Propagator{}.Inject(ctx, headers)

	err = a.Client.Publish(a.Prefix+msg.Topic, body, headers)
	observability.EndSpan(span, err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %s: %w", msg.Topic, errors.Join(serr.ErrPublishFailed, err))
	}

	return nil
}

func publishHeaders(msg signal.Message) map[string]string {
	h := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		h[k] = v
	}

	if msg.Key != "" {
		h["key"] = msg.Key
	}

	h["content-type"] = "application/json"

	return h
}
