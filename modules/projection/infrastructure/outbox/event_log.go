// Package outbox connects the projection to Postgres outbox tables: resolved
// events are enqueued inside the handler transaction, and inbound events are
// relayed from a table into the dispatcher.
package outbox

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/saga"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/outbox"
)

// EventLog appends committed batches to the resolved outbox table using the
// transaction bound to the context, so a batch becomes visible only when the
// inbound event that produced it commits.
type EventLog struct {
	publisher outbox.Publisher
	table     pgx.Identifier
}

var _ saga.EventLog = (*EventLog)(nil)

func NewEventLog(publisher outbox.Publisher, table pgx.Identifier) *EventLog {
	return &EventLog{publisher: publisher, table: table}
}

func (l *EventLog) Append(ctx context.Context, batchID uuid.UUID, tuples []events.EventTuple) error {
	if len(tuples) == 0 {
		return nil
	}
	if !composables.HasTx(ctx) {
		return errors.Wrap(composables.ErrNoTx, "resolved outbox")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	msgs, err := Messages(batchID, tuples)
	if err != nil {
		return err
	}
	if _, err := l.publisher.Enqueue(ctx, tx, l.table, msgs...); err != nil {
		return errors.Wrapf(err, "enqueue batch %s", batchID)
	}
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"batch_id": batchID.String(),
		"tuples":   len(msgs),
	}).Debug("resolved events enqueued")
	return nil
}

// Messages converts tuples into outbox messages, one per tuple, keeping order.
func Messages(batchID uuid.UUID, tuples []events.EventTuple) ([]outbox.Message, error) {
	msgs := make([]outbox.Message, 0, len(tuples))
	for _, t := range tuples {
		if t.Event == nil {
			return nil, errors.Errorf("tuple for %s has no event", t.TargetStream)
		}
		payload, err := json.Marshal(t.Event)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s", t.Event.ResolvedType())
		}
		msgs = append(msgs, outbox.Message{
			Stream:  t.TargetStream,
			Topic:   string(t.Event.ResolvedType()),
			EventID: MessageID(t.Event.Metadata().EventID),
			BatchID: batchID,
			Payload: payload,
		})
	}
	return msgs, nil
}

// MessageID maps an event id onto a UUID. Ids that are not UUIDs are hashed
// so re-enqueueing the same event stays idempotent.
func MessageID(eventID string) uuid.UUID {
	if id, err := uuid.Parse(eventID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID))
}
