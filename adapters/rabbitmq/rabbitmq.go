package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/observability"
)

const adapterName = "rabbitmq"

// DefaultExchange receives every notification; the topic is the routing key.
const DefaultExchange = "notifications"

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

type Adapter struct {
	Publisher  Publisher
	Exchange   string
	Propagator signal.HeaderPropagator // optional, for context propagation into headers
}

var _ signal.Publisher = (*Adapter)(nil)

func New(p Publisher) *Adapter { return &Adapter{Publisher: p, Exchange: DefaultExchange} }

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, hp signal.HeaderPropagator) *Adapter {
	return &Adapter{Publisher: p, Exchange: DefaultExchange, Propagator: hp}
}

func (a *Adapter) Publish(ctx context.Context, msg signal.Message) error {
	err := a.publish(ctx, msg)
	observability.Published(adapterName, err)

	return err
}

func (a *Adapter) publish(ctx context.Context, msg signal.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq publish: %w", serr.ErrPublishFailed)
	}

	body, err := json.Marshal(msg.Body)
	if err != nil {
		return fmt.Errorf("rabbitmq publish serialize: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	// copy headers to avoid mutating caller-provided map
	hdrs := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		hdrs[k] = v
	}

	if msg.Key != "" {
		hdrs["key"] = msg.Key
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	ctx, span := observability.StartSpan(ctx, "rabbitmq.publish")

	err = a.Publisher.Publish(ctx, PubMsg{
		Exchange:   a.Exchange,
		RoutingKey: msg.Topic,
		Body:       body,
		Headers:    hdrs,
	})
	observability.EndSpan(span, err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq publish %s: %w", msg.Topic, errors.Join(serr.ErrPublishFailed, err))
	}

	return nil
}

func amqpHeaders(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	h := amqp.Table{}
	for k, v := range headers {
		h[k] = v
	}

	return h
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     amqpHeaders(m.Headers),
			Body:        m.Body,
			ContentType: "application/json",
		},
	)
}

// NewWithAMQPChannel publishes on an already opened channel. The exchange must exist.
func NewWithAMQPChannel(ch *amqp.Channel, exchange string) *Adapter {
	ad := New(amqpChannelPublisher{ch: ch})
	if exchange != "" {
		ad.Exchange = exchange
	}

	return ad
}
