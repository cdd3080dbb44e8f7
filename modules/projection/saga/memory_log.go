package saga

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

type CommittedBatch struct {
	BatchID uuid.UUID
	Tuples  []events.EventTuple
}

// MemoryLog keeps committed batches in memory. Used by tests and the replay CLI.
type MemoryLog struct {
	mu      sync.Mutex
	batches []CommittedBatch
	// Err, when set, is returned by Append instead of committing.
	Err error
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, batchID uuid.UUID, tuples []events.EventTuple) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.batches = append(l.batches, CommittedBatch{
		BatchID: batchID,
		Tuples:  append([]events.EventTuple(nil), tuples...),
	})
	return nil
}

func (l *MemoryLog) Batches() []CommittedBatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CommittedBatch(nil), l.batches...)
}

// Tuples returns every committed tuple in commit order.
func (l *MemoryLog) Tuples() []events.EventTuple {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.EventTuple
	for _, b := range l.batches {
		out = append(out, b.Tuples...)
	}
	return out
}

func (l *MemoryLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = nil
}
