// Package outbox is a transactional outbox: messages are enqueued inside the
// caller's transaction and delivered later, in order, by a Relay.
package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Message is one row of an outbox table. Stream is the logical stream the
// message belongs to; BatchID groups messages committed together.
type Message struct {
	Stream  string
	Topic   string
	EventID uuid.UUID
	BatchID uuid.UUID
	Payload json.RawMessage
}

// Meta describes a claimed message to its Dispatcher.
type Meta struct {
	Table    pgx.Identifier
	Stream   string
	Topic    string
	EventID  uuid.UUID
	BatchID  uuid.UUID
	Sequence int64
	Attempts int
}

type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

// Dispatcher delivers one message. A returned error makes the relay retry
// it with backoff until MaxAttempts is reached.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}
