package saga_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/saga"
	"github.com/iota-uz/profile-projection/modules/projection/tuples"
)

var cause = &events.RoleDeleted{Metadata: events.Metadata{EventID: "cause"}, ID: "r-1"}

func memberTuples(t *testing.T, n int) []events.EventTuple {
	t.Helper()
	b := tuples.NewBuilder()
	out := make([]events.EventTuple, 0, n)
	for i := range n {
		member := fmt.Sprintf("u-%d", i)
		out = append(out, b.CreateEvent(
			domain.NewObjectIdent(member, domain.ObjectTypeUser),
			&events.ContainerDeleted{
				Container: domain.Container{ID: "r-1", Type: domain.ContainerTypeRole},
				MemberID:  member,
			},
			cause,
		))
	}
	return out
}

func TestManager_ExecuteCommitsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	log := saga.NewMemoryLog()
	m := saga.NewManager(log)

	all := memberTuples(t, 5)
	id, err := m.CreateBatch(ctx, all[0])
	require.NoError(t, err)
	require.NoError(t, m.AddEvents(ctx, id, all[1:3]...))
	require.NoError(t, m.AddEvents(ctx, id, all[3:]...))
	require.NoError(t, m.ExecuteBatch(ctx, id))

	batches := log.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, id, batches[0].BatchID)
	assert.Equal(t, all, batches[0].Tuples)

	state, err := m.State(id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateExecuted, state)
}

func TestManager_AbortDiscardsAndIsTerminal(t *testing.T) {
	ctx := context.Background()
	log := saga.NewMemoryLog()
	m := saga.NewManager(log)

	all := memberTuples(t, 4)
	id, err := m.CreateBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, m.AddEvents(ctx, id, all[:3]...))
	require.NoError(t, m.AbortBatch(ctx, id))

	assert.Empty(t, log.Tuples())
	state, err := m.State(id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateAborted, state)

	require.ErrorIs(t, m.AddEvents(ctx, id, all[3]), saga.ErrBatchTerminal)
	require.ErrorIs(t, m.ExecuteBatch(ctx, id), saga.ErrBatchTerminal)
	require.ErrorIs(t, m.AbortBatch(ctx, id), saga.ErrBatchTerminal)
	assert.Empty(t, log.Tuples())
}

func TestManager_ExecutedBatchRejectsFurtherCalls(t *testing.T) {
	ctx := context.Background()
	m := saga.NewManager(saga.NewMemoryLog())

	id, err := m.CreateBatch(ctx, memberTuples(t, 1)...)
	require.NoError(t, err)
	require.NoError(t, m.ExecuteBatch(ctx, id))

	require.ErrorIs(t, m.AddEvents(ctx, id, memberTuples(t, 1)...), saga.ErrBatchTerminal)
	require.ErrorIs(t, m.ExecuteBatch(ctx, id), saga.ErrBatchTerminal)
	require.ErrorIs(t, m.AbortBatch(ctx, id), saga.ErrBatchTerminal)
}

func TestManager_CreateBatchRejectsInvalidInitialEvents(t *testing.T) {
	ctx := context.Background()
	m := saga.NewManager(saga.NewMemoryLog())

	invalid := memberTuples(t, 2)
	invalid[1].TargetStream = ""

	id, err := m.CreateBatch(ctx, invalid...)
	require.ErrorIs(t, err, saga.ErrInvalidEvent)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, 0, m.Len())
}

func TestManager_AddEventsValidatesAllBeforeAppending(t *testing.T) {
	ctx := context.Background()
	log := saga.NewMemoryLog()
	m := saga.NewManager(log)

	good := memberTuples(t, 3)
	id, err := m.CreateBatch(ctx, good[0])
	require.NoError(t, err)

	unstamped := events.EventTuple{
		TargetStream: "user-u-9",
		Target:       domain.NewObjectIdent("u-9", domain.ObjectTypeUser),
		Event:        &events.EntityDeleted{ID: "u-9", ObjectType: domain.ObjectTypeUser},
	}
	require.ErrorIs(t, m.AddEvents(ctx, id, good[1], unstamped), saga.ErrInvalidEvent)

	require.NoError(t, m.AddEvents(ctx, id, good[2]))
	require.NoError(t, m.ExecuteBatch(ctx, id))
	assert.Equal(t, []events.EventTuple{good[0], good[2]}, log.Tuples())
}

func TestManager_RejectsDuplicateEventIDs(t *testing.T) {
	ctx := context.Background()
	m := saga.NewManager(saga.NewMemoryLog())

	tuple := memberTuples(t, 1)[0]
	_, err := m.CreateBatch(ctx, tuple, tuple)
	require.ErrorIs(t, err, saga.ErrInvalidEvent)

	id, err := m.CreateBatch(ctx, tuple)
	require.NoError(t, err)
	require.ErrorIs(t, m.AddEvents(ctx, id, tuple), saga.ErrInvalidEvent)
}

func TestManager_RejectsMissingEvent(t *testing.T) {
	ctx := context.Background()
	m := saga.NewManager(saga.NewMemoryLog())

	var missing *events.EntityDeleted
	_, err := m.CreateBatch(ctx, events.EventTuple{TargetStream: "s", Event: missing})
	require.ErrorIs(t, err, saga.ErrInvalidEvent)
}

func TestManager_ExecuteRevalidatesQueuedEvents(t *testing.T) {
	ctx := context.Background()
	log := saga.NewMemoryLog()
	m := saga.NewManager(log)

	queued := memberTuples(t, 2)
	id, err := m.CreateBatch(ctx, queued...)
	require.NoError(t, err)

	queued[1].Event.Metadata().EventID = ""
	require.ErrorIs(t, m.ExecuteBatch(ctx, id), saga.ErrInvalidEvent)
	assert.Empty(t, log.Tuples())

	state, err := m.State(id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateAborted, state)
}

func TestManager_ExecuteFailureAbortsBatch(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("log unavailable")
	log := saga.NewMemoryLog()
	log.Err = boom
	m := saga.NewManager(log)

	id, err := m.CreateBatch(ctx, memberTuples(t, 2)...)
	require.NoError(t, err)
	require.ErrorIs(t, m.ExecuteBatch(ctx, id), boom)

	state, err := m.State(id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateAborted, state)
}

func TestManager_ExecuteEmptyBatchSkipsLog(t *testing.T) {
	ctx := context.Background()
	calls := 0
	m := saga.NewManager(saga.EventLogFunc(func(context.Context, uuid.UUID, []events.EventTuple) error {
		calls++
		return nil
	}))

	id, err := m.CreateBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, m.ExecuteBatch(ctx, id))
	assert.Zero(t, calls)
}

func TestManager_UnknownBatch(t *testing.T) {
	m := saga.NewManager(saga.NewMemoryLog())
	require.ErrorIs(t, m.ExecuteBatch(context.Background(), uuid.New()), saga.ErrBatchNotFound)
}

func TestManager_PrunesTerminalBatchesAfterRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := saga.NewManager(saga.NewMemoryLog(),
		saga.WithTerminalRetention(time.Minute),
		saga.WithClock(func() time.Time { return now }),
	)

	done, err := m.CreateBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, m.AbortBatch(ctx, done))
	open, err := m.CreateBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	now = now.Add(2 * time.Minute)
	_, err = m.CreateBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	require.ErrorIs(t, m.AbortBatch(ctx, done), saga.ErrBatchNotFound)
	_, err = m.State(open)
	require.NoError(t, err, "open batches are never pruned")
}
