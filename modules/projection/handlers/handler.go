package handlers

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/propagation"
	"github.com/iota-uz/profile-projection/modules/projection/saga"
	"github.com/iota-uz/profile-projection/modules/projection/tuples"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/constants"
	"github.com/iota-uz/profile-projection/pkg/keylock"
	"github.com/iota-uz/profile-projection/pkg/repo"
	"github.com/iota-uz/profile-projection/pkg/serrors"
)

// Handler applies one inbound event inside the caller's transaction.
type Handler interface {
	Handle(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error
}

type HandlerFunc func(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error

func (f HandlerFunc) Handle(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error {
	return f(ctx, evt, header, tx)
}

// Context holds the collaborators every handler shares.
type Context struct {
	Repo   domain.Repository
	Saga   saga.Orchestrator
	Engine *propagation.Engine
	Locks  *keylock.Manager
	Clock  func() time.Time
}

func NewContext(repository domain.Repository, orchestrator saga.Orchestrator, engine *propagation.Engine, locks *keylock.Manager) *Context {
	if locks == nil {
		locks = keylock.New()
	}
	return &Context{
		Repo:   repository,
		Saga:   orchestrator,
		Engine: engine,
		Locks:  locks,
		Clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Atomic runs fn as one unit. Keys locked inside stay held until fn returns
// and, when the repository keeps its own state, a failed fn leaves it as it
// was. Nested calls join the outer unit.
func (c *Context) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release := c.Locks.Hold(ctx)
	defer release()
	uow, ok := c.Repo.(domain.UnitOfWork)
	if !ok {
		return fn(ctx)
	}
	return uow.InTx(ctx, fn)
}

func (c *Context) atomic(h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error {
		return c.Atomic(ctx, func(ctx context.Context) error {
			return h.Handle(ctx, evt, header, tx)
		})
	})
}

func (c *Context) tuples() *tuples.Builder {
	return c.Engine.Builder()
}

// occurredAt is the event timestamp, or now when the producer left it empty.
func (c *Context) occurredAt(evt events.DomainEvent) time.Time {
	if ts := evt.Meta().Timestamp; !ts.IsZero() {
		return ts
	}
	return c.Clock()
}

// typed adapts fn to Handler. It rejects a missing event or transaction,
// validates the payload and binds tx to ctx before fn runs.
func typed[E events.DomainEvent](fn func(ctx context.Context, evt E, header events.StreamHeader) error) Handler {
	return HandlerFunc(func(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error {
		payload, err := checkInput[E](evt, tx)
		if err != nil {
			return err
		}
		ctx = composables.WithTx(ctx, tx)
		ctx = composables.WithLogger(ctx, composables.UseLogger(ctx).WithFields(logrus.Fields{
			"event_type": string(payload.Type()),
			"event_id":   payload.Meta().EventID,
			"stream":     header.StreamName,
		}))
		return fn(ctx, payload, header)
	})
}

func checkInput[E events.DomainEvent](evt events.DomainEvent, tx repo.Tx) (E, error) {
	var zero E
	if evt == nil || isNil(evt) {
		return zero, fmt.Errorf("%w: event is required", domain.ErrValidation)
	}
	if tx == nil || isNil(tx) {
		return zero, fmt.Errorf("%w: transaction is required", domain.ErrValidation)
	}
	payload, ok := evt.(E)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected payload %T for %s", domain.ErrValidation, evt, evt.Type())
	}
	if err := validatePayload(payload); err != nil {
		return zero, err
	}
	return payload, nil
}

func validatePayload(payload any) error {
	err := constants.Validate.Struct(payload)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %w", domain.ErrValidation, serrors.ProcessValidatorErrors(ve, nil))
	}
	return fmt.Errorf("%w: %w", domain.ErrValidation, err)
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

// batch is an open saga batch bound to one handler run.
type batch struct {
	add  func(ctx context.Context, tuples ...events.EventTuple) error
	size int
}

func (b *batch) Add(ctx context.Context, tuples ...events.EventTuple) error {
	if len(tuples) == 0 {
		return nil
	}
	if err := b.add(ctx, tuples...); err != nil {
		return err
	}
	b.size += len(tuples)
	return nil
}

// inBatch opens a batch with initial, runs fn and executes the batch. When
// fn fails the batch is aborted and nothing reaches the event log.
func (c *Context) inBatch(ctx context.Context, initial []events.EventTuple, fn func(ctx context.Context, b *batch) error) error {
	batchID, err := c.Saga.CreateBatch(ctx, initial...)
	if err != nil {
		return errors.Wrap(err, "create batch")
	}
	logger := composables.UseLogger(ctx).WithField("batch_id", batchID.String())
	ctx = composables.WithLogger(ctx, logger)

	b := &batch{
		size: len(initial),
		add: func(ctx context.Context, tuples ...events.EventTuple) error {
			return c.Saga.AddEvents(ctx, batchID, tuples...)
		},
	}
	if fn != nil {
		if err := fn(ctx, b); err != nil {
			if abortErr := c.Saga.AbortBatch(ctx, batchID); abortErr != nil {
				logger.WithError(abortErr).Error("failed to abort batch")
				return errors.Join(err, abortErr)
			}
			logger.WithError(err).Warn("batch aborted")
			return err
		}
	}
	if err := c.Saga.ExecuteBatch(ctx, batchID); err != nil {
		return err
	}
	logger.WithField("events", b.size).Debug("batch executed")
	return nil
}

// emit is the common recipe: open a batch holding tuples, persist, execute.
func (c *Context) emit(ctx context.Context, tuples []events.EventTuple, persist func(ctx context.Context) error) error {
	return c.inBatch(ctx, tuples, func(ctx context.Context, _ *batch) error {
		if persist == nil {
			return nil
		}
		return persist(ctx)
	})
}

// recalculate runs one client-setting recalculation pass and persists the
// results.
func (c *Context) recalculate(ctx context.Context, b *batch, profileIDs []string, cause events.DomainEvent) error {
	if len(profileIDs) == 0 {
		return nil
	}
	tuples, results, err := c.Engine.RecalculateClientSettings(ctx, profileIDs, cause)
	if err != nil {
		return err
	}
	if err := b.Add(ctx, tuples...); err != nil {
		return err
	}
	for _, r := range results {
		if err := c.Repo.SaveCalculatedClientSettings(ctx, r.ProfileID, r.Settings); err != nil {
			return errors.Wrapf(err, "save calculated client settings of %s", r.ProfileID)
		}
	}
	return nil
}

// creationTags emits TagsAdded for an object that has no members yet.
func (c *Context) creationTags(subject domain.ObjectIdent, tags []domain.TagAssignment, cause events.DomainEvent) []events.EventTuple {
	if len(tags) == 0 {
		return nil
	}
	return []events.EventTuple{
		c.tuples().CreateEvent(subject, &events.TagsAdded{Object: subject, Tags: tags}, cause),
	}
}
