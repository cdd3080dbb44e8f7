package tuples_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/tuples"
	"github.com/iota-uz/profile-projection/pkg/constants"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestBuilder_CreateEvent_StampsCausation(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := tuples.NewBuilder(tuples.WithClock(func() time.Time { return now }), tuples.WithIDGenerator(sequentialIDs()))

	cause := &events.RoleDeleted{
		Metadata: events.Metadata{EventID: "cause-1", CorrelationID: "corr-1", Initiator: events.Initiator{ID: "admin"}},
		ID:       "r-1",
	}
	target := domain.NewObjectIdent("r-1", domain.ObjectTypeRole)

	tuple := b.CreateEvent(target, &events.EntityDeleted{ID: "r-1", ObjectType: domain.ObjectTypeRole}, cause)

	assert.Equal(t, "role-r-1", tuple.TargetStream)
	assert.Equal(t, target, tuple.Target)
	meta := tuple.Event.Metadata()
	assert.Equal(t, "id-1", meta.EventID)
	assert.Equal(t, "cause-1", meta.CausationID)
	assert.Equal(t, "corr-1", meta.CorrelationID)
	assert.Equal(t, "r-1", meta.RelatedEntityID)
	assert.Equal(t, "admin", meta.Initiator.ID)
	assert.Equal(t, now, meta.Timestamp, "zero cause timestamp falls back to the clock")
	require.NoError(t, constants.Validate.Struct(tuple))
	require.NoError(t, constants.Validate.Struct(tuple.Event))
}

func TestBuilder_CreateEvent_CorrelationFallsBackToCause(t *testing.T) {
	b := tuples.NewBuilder()
	ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	cause := &events.TagDeleted{Metadata: events.Metadata{EventID: "cause-2", Timestamp: ts}, ID: "t-1"}

	tuple := b.CreateEvent(domain.NewObjectIdent("t-1", domain.ObjectTypeTag), &events.EntityDeleted{ID: "t-1", ObjectType: domain.ObjectTypeTag}, cause)

	assert.Equal(t, "cause-2", tuple.Event.Metadata().CorrelationID)
	assert.Equal(t, ts, tuple.Event.Metadata().Timestamp)
	assert.NotEmpty(t, tuple.Event.Metadata().EventID)
}

func TestBuilder_CreateEvents_PreservesOrder(t *testing.T) {
	b := tuples.NewBuilder(tuples.WithIDGenerator(sequentialIDs()))
	cause := &events.ProfileDeleted{Metadata: events.Metadata{EventID: "c"}, ID: "u-1", Kind: domain.ProfileKindUser}
	target := domain.NewObjectIdent("u-1", domain.ObjectTypeUser)

	out := b.CreateEvents(target, []events.ResolvedEvent{
		&events.ClientSettingsCalculated{ProfileID: "u-1"},
		&events.ClientSettingsInvalidated{ProfileID: "u-1"},
	}, cause)

	require.Len(t, out, 2)
	assert.Equal(t, events.ResolvedClientSettingsCalculated, out[0].Event.ResolvedType())
	assert.Equal(t, events.ResolvedClientSettingsInvalidated, out[1].Event.ResolvedType())
	assert.Equal(t, "id-1", out[0].Event.Metadata().EventID)
	assert.Equal(t, "id-2", out[1].Event.Metadata().EventID)
}
