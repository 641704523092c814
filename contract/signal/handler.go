package signal

import "context"

// Receiver is a raw subscriber attached to the bus for one (kind, entity) pair.
// Implementations must be safe for concurrent use by multiple goroutines.
type Receiver func(ctx context.Context, ev Event) error

// Handler reacts to classified events. The dispatcher routes each operation to its
// callback; Generic is reachable through the dispatcher's Generic route.
type Handler interface {
	Create(ctx context.Context, ev Event) error
	Update(ctx context.Context, ev Event) error
	Delete(ctx context.Context, ev Event) error
	Generic(ctx context.Context, ev Event) error
}

// Binding declares which kinds a handler listens for on one entity type.
// Entity may be AllEntities.
type Binding struct {
	Entity EntityType
	Kinds  []Kind
}

// Handling is a handler's static declaration, walked once at registration.
type Handling []Binding
