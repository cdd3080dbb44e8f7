package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	projectionoutbox "github.com/iota-uz/profile-projection/modules/projection/infrastructure/outbox"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/outbox"
	"github.com/iota-uz/profile-projection/pkg/repo"
)

type nopTx struct{}

func (nopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (nopTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (nopTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

type enqueued struct {
	tx    repo.Tx
	table pgx.Identifier
	msgs  []outbox.Message
}

type fakePublisher struct {
	calls []enqueued
	err   error
}

func (p *fakePublisher) Enqueue(_ context.Context, tx repo.Tx, table pgx.Identifier, msgs ...outbox.Message) ([]int64, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.calls = append(p.calls, enqueued{tx: tx, table: table, msgs: msgs})
	seqs := make([]int64, len(msgs))
	for i := range msgs {
		seqs[i] = int64(i + 1)
	}
	return seqs, nil
}

func tuple(eventID string, target domain.ObjectIdent) events.EventTuple {
	evt := &events.EntityDeleted{ID: target.ID, ObjectType: target.Type}
	evt.EventID = eventID
	return events.EventTuple{
		TargetStream: events.StreamName(target),
		Target:       target,
		Event:        evt,
	}
}

var table = pgx.Identifier{"projection_resolved_outbox"}

func TestEventLog_AppendEnqueuesInTupleOrder(t *testing.T) {
	pub := &fakePublisher{}
	log := projectionoutbox.NewEventLog(pub, table)
	batch := uuid.New()
	first := uuid.NewString()
	tuples := []events.EventTuple{
		tuple(first, domain.ObjectIdent{ID: "r1", Type: domain.ObjectTypeRole}),
		tuple("not-a-uuid", domain.ObjectIdent{ID: "u1", Type: domain.ObjectTypeUser}),
	}

	tx := nopTx{}
	require.NoError(t, log.Append(composables.WithTx(context.Background(), tx), batch, tuples))

	require.Len(t, pub.calls, 1)
	call := pub.calls[0]
	assert.Equal(t, tx, call.tx)
	assert.Equal(t, table, call.table)
	require.Len(t, call.msgs, 2)

	assert.Equal(t, "role-r1", call.msgs[0].Stream)
	assert.Equal(t, "EntityDeleted", call.msgs[0].Topic)
	assert.Equal(t, uuid.MustParse(first), call.msgs[0].EventID)
	assert.Equal(t, batch, call.msgs[0].BatchID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(call.msgs[1].Payload, &payload))
	assert.Equal(t, "u1", payload["id"])
	assert.Equal(t, "not-a-uuid", payload["event_id"])
	assert.Equal(t, projectionoutbox.MessageID("not-a-uuid"), call.msgs[1].EventID)
}

func TestEventLog_RequiresTransaction(t *testing.T) {
	pub := &fakePublisher{}
	log := projectionoutbox.NewEventLog(pub, table)
	err := log.Append(context.Background(), uuid.New(), []events.EventTuple{
		tuple(uuid.NewString(), domain.ObjectIdent{ID: "r1", Type: domain.ObjectTypeRole}),
	})
	require.ErrorIs(t, err, composables.ErrNoTx)
	assert.Empty(t, pub.calls)
}

func TestEventLog_EmptyBatchWritesNothing(t *testing.T) {
	pub := &fakePublisher{}
	log := projectionoutbox.NewEventLog(pub, table)
	require.NoError(t, log.Append(context.Background(), uuid.New(), nil))
	assert.Empty(t, pub.calls)
}

func TestEventLog_PublisherFailureSurfaces(t *testing.T) {
	boom := errors.New("insert failed")
	log := projectionoutbox.NewEventLog(&fakePublisher{err: boom}, table)
	err := log.Append(composables.WithTx(context.Background(), nopTx{}), uuid.New(), []events.EventTuple{
		tuple(uuid.NewString(), domain.ObjectIdent{ID: "r1", Type: domain.ObjectTypeRole}),
	})
	require.ErrorIs(t, err, boom)
}

func TestMessageID_IsStable(t *testing.T) {
	assert.Equal(t, projectionoutbox.MessageID("evt-1"), projectionoutbox.MessageID("evt-1"))
	assert.NotEqual(t, projectionoutbox.MessageID("evt-1"), projectionoutbox.MessageID("evt-2"))
	id := uuid.New()
	assert.Equal(t, id, projectionoutbox.MessageID(id.String()))
}

func TestHeader(t *testing.T) {
	id := uuid.New()
	h := projectionoutbox.Header(outbox.Meta{Stream: "profile-u1", EventID: id, Sequence: 42})
	assert.Equal(t, events.StreamHeader{StreamName: "profile-u1", EventNumber: 42, EventID: id.String()}, h)
}

func TestInbox_EnqueuesByEventType(t *testing.T) {
	pub := &fakePublisher{}
	inbox := projectionoutbox.NewInbox(pub, pgx.Identifier{"projection_inbound"})
	evt := &events.UserCreated{ID: "u1", Name: "Ada"}
	evt.EventID = "evt-u1"

	require.NoError(t, inbox.Enqueue(context.Background(), nopTx{}, "profile-u1", evt))
	require.Len(t, pub.calls, 1)
	msg := pub.calls[0].msgs[0]
	assert.Equal(t, string(events.TypeUserCreated), msg.Topic)
	assert.Equal(t, "profile-u1", msg.Stream)

	decoded, err := events.Decode(events.Type(msg.Topic), msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, "u1", decoded.(*events.UserCreated).ID)
}

type execRecorder struct {
	nopTx
	sql []string
}

func (r *execRecorder) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	return pgconn.CommandTag{}, nil
}

func TestEnsureTables(t *testing.T) {
	rec := &execRecorder{}
	require.NoError(t, projectionoutbox.EnsureTables(context.Background(), rec,
		pgx.Identifier{"projection_inbound_outbox"}, pgx.Identifier{"public", "projection_resolved_outbox"}))
	require.Len(t, rec.sql, 2)
	assert.Contains(t, rec.sql[0], `CREATE TABLE IF NOT EXISTS "projection_inbound_outbox"`)
	assert.Contains(t, rec.sql[1], `"public"."projection_resolved_outbox"`)
	assert.Contains(t, rec.sql[1], "public_projection_resolved_outbox_pending_idx")
}
