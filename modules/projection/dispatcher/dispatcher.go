// Package dispatcher routes inbound events to their handlers and records the
// projection position once a handler succeeds.
package dispatcher

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/handlers"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/repo"
	"github.com/iota-uz/profile-projection/pkg/serrors"
)

var ErrUnsupportedEventType = serrors.NewError("PROJECTION_UNSUPPORTED_EVENT_TYPE", "unsupported event type", "")

var tracer = otel.Tracer("profile-projection-dispatcher")

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Scope runs fn as one unit of work, see handlers.Context.Atomic.
type Scope func(ctx context.Context, fn func(ctx context.Context) error) error

// WithScope makes the handler and the position write share one unit.
func WithScope(scope Scope) Option {
	return func(d *Dispatcher) {
		if scope != nil {
			d.scope = scope
		}
	}
}

type Dispatcher struct {
	handlers map[events.Type]handlers.Handler
	repo     domain.Repository
	now      func() time.Time
	scope    Scope
	m        *metrics
}

func New(registry map[events.Type]handlers.Handler, repository domain.Repository, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: registry,
		repo:     repository,
		now:      func() time.Time { return time.Now().UTC() },
		scope:    func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
		m:        getMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Types lists the routable event types in lexical order.
func (d *Dispatcher) Types() []events.Type {
	out := make([]events.Type, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Atomic runs fn in the dispatcher's scope. Callers use it to keep a unit
// open until their own transaction commits.
func (d *Dispatcher) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.scope(ctx, fn)
}

// DispatchRaw decodes payload as an event of type t and dispatches it.
func (d *Dispatcher) DispatchRaw(ctx context.Context, t events.Type, payload []byte, header events.StreamHeader, tx repo.Tx) error {
	if _, ok := d.handlers[t]; !ok {
		d.m.dispatchTotal.WithLabelValues(string(t), "unsupported").Inc()
		return fmt.Errorf("%w: %q", ErrUnsupportedEventType, t)
	}
	evt, err := events.Decode(t, payload)
	if err != nil {
		d.m.dispatchTotal.WithLabelValues(string(t), "invalid").Inc()
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return d.Dispatch(ctx, evt, header, tx)
}

// Dispatch runs exactly one handler for evt inside tx. Handler failures are
// returned unchanged; the caller owns rollback and redelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error {
	if evt == nil {
		return fmt.Errorf("%w: event is required", domain.ErrValidation)
	}
	t := evt.Type()
	h, ok := d.handlers[t]
	if !ok {
		d.m.dispatchTotal.WithLabelValues(string(t), "unsupported").Inc()
		return fmt.Errorf("%w: %q", ErrUnsupportedEventType, t)
	}

	ctx, span := tracer.Start(ctx, "projection.dispatch."+string(t),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.type", string(t)),
			attribute.String("event.stream", header.StreamName),
			attribute.Int64("event.number", int64(header.EventNumber)),
		),
	)
	defer span.End()

	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"event_type":   string(t),
		"stream":       header.StreamName,
		"event_number": header.EventNumber,
	})
	ctx = composables.WithLogger(ctx, logger)

	start := time.Now()
	err := d.scope(ctx, func(ctx context.Context) error {
		if err := h.Handle(ctx, evt, header, tx); err != nil {
			return err
		}
		return d.saveState(ctx, evt, header, tx)
	})
	latency := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.m.record(t, "failure", latency)
		logger.WithError(err).Warn("event handling failed")
		return err
	}
	d.m.record(t, "success", latency)
	logger.WithField("latency_ms", latency.Milliseconds()).Debug("event handled")
	return nil
}

func (d *Dispatcher) saveState(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error {
	eventID := header.EventID
	if eventID == "" {
		eventID = evt.Meta().EventID
	}
	state := domain.ProjectionState{
		StreamName:  header.StreamName,
		EventNumber: header.EventNumber,
		EventID:     eventID,
		EventName:   string(evt.Type()),
		ProcessedOn: d.now(),
	}
	if err := d.repo.SaveProjectionState(composables.WithTx(ctx, tx), state); err != nil {
		return errors.Wrapf(err, "save projection state of %s", header.StreamName)
	}
	return nil
}
