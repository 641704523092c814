package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/orm"
)

// EmailName is the registration name of EmailHandler.
const EmailName = "email"

// NotifyField is the entity field holding notification recipients, either a
// comma separated string or a list of strings.
const NotifyField = "notify"

// Notification is the message EmailHandler publishes per affected entity.
type Notification struct {
	ID         string         `json:"id"`
	EventID    string         `json:"event_id"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id,omitempty"`
	Operation  string         `json:"operation"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	Recipients []string       `json:"recipients,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	SentAt     time.Time      `json:"sent_at"`
}

// EmailHandler notifies watchers of test plans, cases and runs.
type EmailHandler struct {
	pub    signal.Publisher
	prop   signal.HeaderPropagator
	logger *slog.Logger
}

// EmailOption configures an EmailHandler.
type EmailOption func(*EmailHandler)

// WithPropagator injects tracing headers into published notifications.
func WithPropagator(p signal.HeaderPropagator) EmailOption {
	return func(h *EmailHandler) {
		if p != nil {
			h.prop = p
		}
	}
}

// WithEmailLogger sets the handler logger.
func WithEmailLogger(l *slog.Logger) EmailOption {
	return func(h *EmailHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewEmailHandler returns a handler publishing through pub. A nil pub makes every callback a no-op.
func NewEmailHandler(pub signal.Publisher, opts ...EmailOption) *EmailHandler {
	h := &EmailHandler{pub: pub, prop: signal.NopHeaderPropagator{}, logger: slog.Default()}
	for _, o := range opts {
		o(h)
	}

	return h
}

// EmailHandling lists the entities and kinds EmailHandler listens to.
func EmailHandling() signal.Handling {
	kinds := []signal.Kind{signal.KindSave, signal.KindBulkUpdate, signal.KindDelete}

	return signal.Handling{
		{Entity: EntityTestPlan, Kinds: kinds},
		{Entity: EntityTestCase, Kinds: kinds},
		{Entity: EntityTestCasePlan, Kinds: kinds},
		{Entity: EntityTestRun, Kinds: kinds},
		{Entity: EntityTestCaseRun, Kinds: kinds},
	}
}

func (h *EmailHandler) Create(ctx context.Context, ev signal.Event) error {
	return h.notify(ctx, signal.OperationCreate, ev)
}

func (h *EmailHandler) Update(ctx context.Context, ev signal.Event) error {
	return h.notify(ctx, signal.OperationUpdate, ev)
}

func (h *EmailHandler) Delete(ctx context.Context, ev signal.Event) error {
	return h.notify(ctx, signal.OperationDelete, ev)
}

// Generic notifies using the event's own label, falling back to update.
func (h *EmailHandler) Generic(ctx context.Context, ev signal.Event) error {
	op := ev.Operation
	if op == "" {
		op = signal.OperationUpdate
	}

	return h.notify(ctx, op, ev)
}

// Topic returns the notification topic for entity and op.
func Topic(entity signal.EntityType, op signal.Operation) string {
	return "notifications." + strings.ToLower(string(entity)) + "." + string(op)
}

func (h *EmailHandler) notify(ctx context.Context, op signal.Operation, ev signal.Event) error {
	if h.pub == nil {
		return nil
	}

	models, err := affected(ctx, ev)
	if err != nil {
		return err
	}

	var errs []error

	for _, m := range models {
		n := compose(op, ev, m)
		if len(n.Recipients) == 0 {
			h.logger.DebugContext(ctx, "no recipients",
				slog.String("entity", n.Entity),
				slog.String("entity_id", n.EntityID),
			)

			continue
		}

		headers := map[string]string{"event-id": ev.ID}
		h.prop.Inject(ctx, headers)

		msg := signal.Message{
			Topic:   Topic(ev.Sender, op),
			Key:     m.Key(),
			Body:    n,
			Headers: headers,
		}

		if err := h.pub.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", m.Key(), err))
		}
	}

	return errors.Join(errs...)
}

func compose(op signal.Operation, ev signal.Event, m *orm.Model) Notification {
	entity := string(ev.Sender)

	n := Notification{
		ID:         uuid.NewString(),
		EventID:    ev.ID,
		Entity:     entity,
		EntityID:   m.ID,
		Operation:  string(op),
		Recipients: recipients(m.Fields[NotifyField]),
		SentAt:     time.Now().UTC(),
	}

	switch op {
	case signal.OperationCreate:
		n.Subject = fmt.Sprintf("%s %s created", entity, m.ID)
	case signal.OperationDelete:
		n.Subject = fmt.Sprintf("%s %s deleted", entity, m.ID)
	default:
		n.Subject = fmt.Sprintf("%s %s updated", entity, m.ID)
	}

	changes := ev.Fields
	if changes == nil {
		changes = m.Fields
	}

	n.Changes = changes
	n.Body = body(changes)

	return n
}

func body(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == NotifyField {
			continue
		}

		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, fields[k])
	}

	return b.String()
}

func recipients(v any) []string {
	var raw []string

	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []string:
		raw = t
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}

		if _, ok := seen[r]; ok {
			continue
		}

		seen[r] = struct{}{}
		out = append(out, r)
	}

	return out
}
