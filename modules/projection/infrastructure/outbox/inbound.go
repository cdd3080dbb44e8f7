package outbox

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/outbox"
	"github.com/iota-uz/profile-projection/pkg/repo"
)

type rawDispatcher interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	DispatchRaw(ctx context.Context, t events.Type, payload []byte, header events.StreamHeader, tx repo.Tx) error
}

// InboundAdapter feeds relayed inbound messages into the dispatcher. Each
// message gets its own transaction; a returned error rolls it back and the
// relay redelivers the message later. The dispatcher's unit stays open until
// that transaction commits.
type InboundAdapter struct {
	pool       *pgxpool.Pool
	dispatcher rawDispatcher
}

var _ outbox.Dispatcher = (*InboundAdapter)(nil)

func NewInboundAdapter(pool *pgxpool.Pool, dispatcher rawDispatcher) *InboundAdapter {
	return &InboundAdapter{pool: pool, dispatcher: dispatcher}
}

func (a *InboundAdapter) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	ctx = composables.WithPool(ctx, a.pool)
	return a.dispatcher.Atomic(ctx, func(ctx context.Context) error {
		return composables.InTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
			return a.dispatcher.DispatchRaw(txCtx, events.Type(msg.Meta.Topic), msg.Payload, Header(msg.Meta), tx)
		})
	})
}

// Header is the stream position of a relayed inbound message.
func Header(meta outbox.Meta) events.StreamHeader {
	h := events.StreamHeader{
		StreamName: meta.Stream,
		EventID:    meta.EventID.String(),
	}
	if meta.Sequence > 0 {
		h.EventNumber = uint64(meta.Sequence)
	}
	return h
}

// Inbox enqueues inbound events for the relay. Upstream writers and tests use
// it to feed the projection.
type Inbox struct {
	publisher outbox.Publisher
	table     pgx.Identifier
}

func NewInbox(publisher outbox.Publisher, table pgx.Identifier) *Inbox {
	return &Inbox{publisher: publisher, table: table}
}

func (i *Inbox) Enqueue(ctx context.Context, tx repo.Tx, stream string, evts ...events.DomainEvent) error {
	msgs := make([]outbox.Message, 0, len(evts))
	for _, evt := range evts {
		payload, err := json.Marshal(evt)
		if err != nil {
			return errors.Wrapf(err, "marshal %s", evt.Type())
		}
		msgs = append(msgs, outbox.Message{
			Stream:  stream,
			Topic:   string(evt.Type()),
			EventID: MessageID(evt.Meta().EventID),
			Payload: payload,
		})
	}
	if _, err := i.publisher.Enqueue(ctx, tx, i.table, msgs...); err != nil {
		return errors.Wrap(err, "enqueue inbound events")
	}
	return nil
}
