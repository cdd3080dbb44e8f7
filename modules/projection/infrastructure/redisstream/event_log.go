// Package redisstream writes resolved events to Redis streams, one stream per
// read-model object.
package redisstream

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/saga"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/outbox"
)

const DefaultPrefix = "projection:"

type Option func(*options)

type options struct {
	prefix  string
	maxLen  int64
	timeout time.Duration
}

// WithPrefix sets the key prefix prepended to every stream name.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithMaxLen caps each stream approximately at n entries.
func WithMaxLen(n int64) Option {
	return func(o *options) { o.maxLen = n }
}

func newOptions(opts []Option) options {
	o := options{prefix: DefaultPrefix, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// EventLog appends a batch with XADD commands wrapped in MULTI/EXEC, so a
// batch lands completely or not at all.
type EventLog struct {
	client redis.Cmdable
	opts   options
}

var _ saga.EventLog = (*EventLog)(nil)

func NewEventLog(client redis.Cmdable, opts ...Option) *EventLog {
	return &EventLog{client: client, opts: newOptions(opts)}
}

func (l *EventLog) Append(ctx context.Context, batchID uuid.UUID, tuples []events.EventTuple) error {
	if len(tuples) == 0 {
		return nil
	}
	entries := make([]*redis.XAddArgs, 0, len(tuples))
	for _, t := range tuples {
		values, err := Values(batchID, t)
		if err != nil {
			return err
		}
		entries = append(entries, l.args(t.TargetStream, values))
	}
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.XAdd(ctx, e)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "xadd batch %s", batchID)
	}
	composables.UseLogger(ctx).WithField("batch_id", batchID.String()).Debugf("appended %d entries to redis streams", len(entries))
	return nil
}

func (l *EventLog) args(stream string, values map[string]any) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: Key(l.opts.prefix, stream),
		MaxLen: l.opts.maxLen,
		Approx: l.opts.maxLen > 0,
		Values: values,
	}
}

func Key(prefix, stream string) string {
	return prefix + stream
}

// Values is the stream entry of one tuple.
func Values(batchID uuid.UUID, t events.EventTuple) (map[string]any, error) {
	if t.Event == nil {
		return nil, errors.Errorf("tuple for %s has no event", t.TargetStream)
	}
	payload, err := json.Marshal(t.Event)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s", t.Event.ResolvedType())
	}
	return map[string]any{
		"batch_id":    batchID.String(),
		"event_id":    t.Event.Metadata().EventID,
		"event_type":  string(t.Event.ResolvedType()),
		"target_id":   t.Target.ID,
		"target_type": string(t.Target.Type),
		"payload":     string(payload),
	}, nil
}

// Forwarder copies relayed resolved outbox messages to Redis streams. Its
// Handle method is an event bus subscriber.
type Forwarder struct {
	client redis.Cmdable
	opts   options
}

func NewForwarder(client redis.Cmdable, opts ...Option) *Forwarder {
	return &Forwarder{client: client, opts: newOptions(opts)}
}

func (f *Forwarder) Handle(meta *outbox.Meta, topic string, payload json.RawMessage) error {
	if meta == nil {
		return errors.New("forwarder: missing message meta")
	}
	values := map[string]any{
		"batch_id":   meta.BatchID.String(),
		"event_id":   meta.EventID.String(),
		"event_type": topic,
		"sequence":   strconv.FormatInt(meta.Sequence, 10),
		"payload":    string(payload),
	}
	args := &redis.XAddArgs{
		Stream: Key(f.opts.prefix, meta.Stream),
		MaxLen: f.opts.maxLen,
		Approx: f.opts.maxLen > 0,
		Values: values,
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.opts.timeout)
	defer cancel()
	if err := f.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Wrapf(err, "forward %s to %s", topic, args.Stream)
	}
	return nil
}
