package inmemory

import (
	"context"
	"sync"

	"github.com/next-trace/scg-signal-bus/contract/signal"
)

// Publisher is a thread-safe in-memory implementation of signal.Publisher.
// It records published messages for testing and examples.
type Publisher struct {
	mu       sync.Mutex
	messages []signal.Message
}

// Ensure Publisher implements the contract.
var _ signal.Publisher = (*Publisher)(nil)

// New creates a new in-memory publisher.
func New() *Publisher { return &Publisher{} }

func (p *Publisher) Publish(ctx context.Context, msg signal.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()

	return nil
}

// Messages returns a copy of every recorded message in publish order.
func (p *Publisher) Messages() []signal.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]signal.Message(nil), p.messages...)
}

// Topic returns the recorded messages published on topic.
func (p *Publisher) Topic(topic string) []signal.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []signal.Message

	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}

	return out
}

// Reset drops every recorded message.
func (p *Publisher) Reset() {
	p.mu.Lock()
	p.messages = nil
	p.mu.Unlock()
}
