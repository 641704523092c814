package signal

import "context"

// Message is an outbound payload handed to a broker adapter.
// Body is serialized by the adapter.
type Message struct {
	Topic   string
	Key     string
	Body    any
	Headers map[string]string
}

// Publisher abstracts publishing messages to a broker.
// Library users provide an implementation that maps to Kafka/NATS/RabbitMQ etc.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
