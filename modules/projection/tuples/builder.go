package tuples

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(b *Builder) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// Builder stamps causation and addressing metadata onto resolved events.
type Builder struct {
	now   func() time.Time
	newID func() string
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateEvent addresses evt to the stream of target. evt is stamped in place,
// so every target needs its own event value.
func (b *Builder) CreateEvent(target domain.ObjectIdent, evt events.ResolvedEvent, cause events.DomainEvent) events.EventTuple {
	meta := evt.Metadata()
	meta.EventID = b.newID()
	meta.RelatedEntityID = target.ID
	meta.Timestamp = b.now()

	if cause != nil {
		c := cause.Meta()
		meta.CausationID = c.EventID
		meta.CorrelationID = c.CorrelationID
		if meta.CorrelationID == "" {
			meta.CorrelationID = c.EventID
		}
		meta.Initiator = c.Initiator
		if !c.Timestamp.IsZero() {
			meta.Timestamp = c.Timestamp
		}
	}

	return events.EventTuple{
		TargetStream: events.StreamName(target),
		Target:       target,
		Event:        evt,
	}
}

func (b *Builder) CreateEvents(target domain.ObjectIdent, evts []events.ResolvedEvent, cause events.DomainEvent) []events.EventTuple {
	out := make([]events.EventTuple, 0, len(evts))
	for _, evt := range evts {
		out = append(out, b.CreateEvent(target, evt, cause))
	}
	return out
}
