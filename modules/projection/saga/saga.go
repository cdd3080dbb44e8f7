package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/constants"
	"github.com/iota-uz/profile-projection/pkg/serrors"
)

type State string

const (
	StateInitialized State = "Initialized"
	StateExecuting   State = "Executing"
	StateExecuted    State = "Executed"
	StateAborted     State = "Aborted"
)

func (s State) IsTerminal() bool {
	return s == StateExecuted || s == StateAborted
}

var (
	ErrBatchNotFound = serrors.NewError("SAGA_BATCH_NOT_FOUND", "batch not found", "")
	ErrBatchTerminal = serrors.NewError("SAGA_BATCH_TERMINAL", "batch no longer accepts operations", "")
	ErrInvalidEvent  = serrors.NewError("SAGA_INVALID_EVENT", "invalid event tuple", "")
)

const DefaultTerminalRetention = 10 * time.Minute

// EventLog is the durable sink a batch is flushed to. Append must write all
// tuples, in order, or none of them.
type EventLog interface {
	Append(ctx context.Context, batchID uuid.UUID, tuples []events.EventTuple) error
}

type EventLogFunc func(ctx context.Context, batchID uuid.UUID, tuples []events.EventTuple) error

func (f EventLogFunc) Append(ctx context.Context, batchID uuid.UUID, tuples []events.EventTuple) error {
	return f(ctx, batchID, tuples)
}

// Orchestrator groups resolved events into batches that are committed or
// discarded as a whole.
type Orchestrator interface {
	CreateBatch(ctx context.Context, initial ...events.EventTuple) (uuid.UUID, error)
	AddEvents(ctx context.Context, batchID uuid.UUID, tuples ...events.EventTuple) error
	ExecuteBatch(ctx context.Context, batchID uuid.UUID) error
	AbortBatch(ctx context.Context, batchID uuid.UUID) error
}

type Option func(*Manager)

func WithTerminalRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithValidator(v *validator.Validate) Option {
	return func(m *Manager) {
		if v != nil {
			m.validate = v
		}
	}
}

type batch struct {
	state      State
	tuples     []events.EventTuple
	eventIDs   map[string]struct{}
	finishedAt time.Time
}

// Manager is the in-process Orchestrator. Batch bookkeeping lives in memory;
// only ExecuteBatch touches the EventLog.
type Manager struct {
	log       EventLog
	retention time.Duration
	now       func() time.Time
	validate  *validator.Validate

	mu      sync.Mutex
	batches map[uuid.UUID]*batch
}

var _ Orchestrator = (*Manager)(nil)

func NewManager(log EventLog, opts ...Option) *Manager {
	m := &Manager{
		log:       log,
		retention: DefaultTerminalRetention,
		now:       time.Now,
		validate:  constants.Validate,
		batches:   make(map[uuid.UUID]*batch),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) CreateBatch(ctx context.Context, initial ...events.EventTuple) (uuid.UUID, error) {
	ids := make(map[string]struct{}, len(initial))
	if err := m.validateTuples(initial, ids); err != nil {
		getMetrics().rejectedTotal.WithLabelValues("create").Inc()
		return uuid.Nil, err
	}

	id := uuid.New()
	m.mu.Lock()
	m.pruneLocked()
	m.batches[id] = &batch{
		state:    StateInitialized,
		tuples:   append([]events.EventTuple(nil), initial...),
		eventIDs: ids,
	}
	m.mu.Unlock()

	getMetrics().batchesTotal.WithLabelValues(string(StateInitialized)).Inc()
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"batch_id": id.String(),
		"events":   len(initial),
	}).Debug("saga: batch created")
	return id, nil
}

func (m *Manager) AddEvents(ctx context.Context, batchID uuid.UUID, tuples ...events.EventTuple) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.openLocked(batchID)
	if err != nil {
		return err
	}

	ids := make(map[string]struct{}, len(b.eventIDs)+len(tuples))
	for id := range b.eventIDs {
		ids[id] = struct{}{}
	}
	if err := m.validateTuples(tuples, ids); err != nil {
		getMetrics().rejectedTotal.WithLabelValues("add").Inc()
		return err
	}
	b.tuples = append(b.tuples, tuples...)
	b.eventIDs = ids
	return nil
}

func (m *Manager) ExecuteBatch(ctx context.Context, batchID uuid.UUID) error {
	m.mu.Lock()
	b, err := m.openLocked(batchID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	b.state = StateExecuting
	pending := b.tuples
	m.mu.Unlock()

	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"batch_id": batchID.String(),
		"events":   len(pending),
	})

	flushErr := m.validateTuples(pending, make(map[string]struct{}, len(pending)))
	if flushErr == nil && len(pending) > 0 {
		start := time.Now()
		flushErr = m.log.Append(ctx, batchID, pending)
		getMetrics().flushLatency.Observe(time.Since(start).Seconds())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b.finishedAt = m.now()
	b.tuples = nil
	if flushErr != nil {
		b.state = StateAborted
		getMetrics().batchesTotal.WithLabelValues(string(StateAborted)).Inc()
		logger.WithError(flushErr).Error("saga: batch execution failed, batch aborted")
		return errors.Wrap(flushErr, "execute batch")
	}
	b.state = StateExecuted
	getMetrics().batchesTotal.WithLabelValues(string(StateExecuted)).Inc()
	getMetrics().eventsTotal.Add(float64(len(pending)))
	logger.Debug("saga: batch executed")
	return nil
}

func (m *Manager) AbortBatch(ctx context.Context, batchID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.openLocked(batchID)
	if err != nil {
		return err
	}
	discarded := len(b.tuples)
	b.state = StateAborted
	b.tuples = nil
	b.finishedAt = m.now()

	getMetrics().batchesTotal.WithLabelValues(string(StateAborted)).Inc()
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"batch_id":  batchID.String(),
		"discarded": discarded,
	}).Debug("saga: batch aborted")
	return nil
}

// State reports the lifecycle state of a batch that has not been pruned yet.
func (m *Manager) State(batchID uuid.UUID) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	return b.state, nil
}

// Len returns the number of tracked batches, terminal ones included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *Manager) openLocked(batchID uuid.UUID) (*batch, error) {
	b, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if b.state != StateInitialized {
		return nil, fmt.Errorf("%w: %s is %s", ErrBatchTerminal, batchID, b.state)
	}
	return b, nil
}

func (m *Manager) pruneLocked() {
	cutoff := m.now().Add(-m.retention)
	for id, b := range m.batches {
		if b.state.IsTerminal() && b.finishedAt.Before(cutoff) {
			delete(m.batches, id)
		}
	}
}

// validateTuples checks every tuple and records its event id in seen. seen
// is only meaningful to the caller when nil is returned.
func (m *Manager) validateTuples(tuples []events.EventTuple, seen map[string]struct{}) error {
	for i, t := range tuples {
		if err := m.validateTuple(t); err != nil {
			return fmt.Errorf("%w: tuple %d: %w", ErrInvalidEvent, i, err)
		}
		id := t.Event.Metadata().EventID
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: tuple %d: duplicate event id %s", ErrInvalidEvent, i, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (m *Manager) validateTuple(t events.EventTuple) error {
	if t.Event == nil || isNilPointer(t.Event) {
		return errors.New("event is missing")
	}
	if err := m.validate.Struct(t); err != nil {
		return translate(err)
	}
	if err := m.validate.Struct(t.Event); err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return serrors.ProcessValidatorErrors(ve, nil)
	}
	return err
}
