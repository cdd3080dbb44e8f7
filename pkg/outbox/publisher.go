package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/profile-projection/pkg/repo"
)

type Publisher interface {
	// Enqueue inserts msgs into table inside tx and returns their sequences
	// in order. Re-enqueueing an event id returns the existing sequence.
	Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msgs ...Message) ([]int64, error)
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msgs ...Message) ([]int64, error) {
	if tx == nil {
		return nil, invalidConfig("tx is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	for i, msg := range msgs {
		if err := validateMessage(msg); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (stream, topic, payload, event_id, batch_id, available_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`,
		table.Sanitize(),
	)
	label := TableLabel(table)
	sequences := make([]int64, 0, len(msgs))
	for _, msg := range msgs {
		var batchID *uuid.UUID
		if msg.BatchID != uuid.Nil {
			batchID = &msg.BatchID
		}
		var sequence int64
		if err := tx.QueryRow(ctx, q, msg.Stream, msg.Topic, msg.Payload, msg.EventID, batchID).Scan(&sequence); err != nil {
			return nil, fmt.Errorf("outbox enqueue %s: %w", msg.EventID, err)
		}
		p.m.enqueueTotal.WithLabelValues(label, msg.Topic).Inc()
		sequences = append(sequences, sequence)
	}
	return sequences, nil
}

func validateMessage(msg Message) error {
	switch {
	case msg.EventID == uuid.Nil:
		return invalidMessage("event_id is required")
	case msg.Stream == "":
		return invalidMessage("stream is required")
	case msg.Topic == "":
		return invalidMessage("topic is required")
	case len(msg.Payload) == 0:
		return invalidMessage("payload is required")
	default:
		return nil
	}
}
