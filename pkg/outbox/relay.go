package outbox

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Relay claims due messages of one table and hands them to a Dispatcher.
// Success publishes the message, failure reschedules it with backoff and
// the last attempt marks it dead.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions
	retry      retryPolicy
	lockKey    int64
	tableLabel string
	m          *metrics
	now        func() time.Time
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	r, err := newRelay(table, dispatcher, opts)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

func newRelay(table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()
	label := TableLabel(table)
	return &Relay{
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		retry:      retryPolicy{max: opts.MaxBackoff, jitter: opts.JitterMax, rand: opts.Rand},
		lockKey:    advisoryLockKey("outbox:" + label),
		tableLabel: label,
		m:          getMetrics(),
		now:        time.Now,
	}, nil
}

func (r *Relay) Table() pgx.Identifier {
	return r.table
}

func (r *Relay) Run(ctx context.Context) error {
	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}
	r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
	return r.runLoop(ctx, newPgStore(r.pool, nil, r.table))
}

func (r *Relay) runSingleActive(ctx context.Context) error {
	log := r.opts.Logger.WithField("table", r.tableLabel)
	for {
		conn, leader, err := r.tryLead(ctx)
		if err != nil {
			log.WithError(err).Warn("outbox: leader election attempt failed")
		}
		if leader {
			r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
			log.Info("outbox: relay became leader")
			err := r.runLoop(ctx, newPgStore(r.pool, conn, r.table))
			r.unlock(conn)
			r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
			return err
		}
		r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
		if err := sleep(ctx, r.opts.PollInterval); err != nil {
			return err
		}
	}
}

// tryLead returns a connection holding the table's advisory lock.
func (r *Relay) tryLead(ctx context.Context) (*pgxpool.Conn, bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return conn, true, nil
}

func (r *Relay) unlock(conn *pgxpool.Conn) {
	var ok bool
	if err := conn.QueryRow(context.Background(), `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		r.opts.Logger.WithError(err).Warn("outbox: advisory unlock failed")
	}
	conn.Release()
}

func (r *Relay) runLoop(ctx context.Context, s store) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	var nextDepth time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if now := r.now(); now.After(nextDepth) {
			r.observeDepth(ctx, s)
			nextDepth = now.Add(r.opts.ObserveQueueDepthEvery)
		}
		if err := r.processOnce(ctx, s); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).WithField("table", r.tableLabel).Warn("outbox: relay tick failed")
		}
	}
}

// processOnce claims one batch and dispatches it in claim order.
func (r *Relay) processOnce(ctx context.Context, s store) error {
	now := r.now()
	claimed, err := s.claim(ctx, now, now.Add(-r.opts.LockTTL), r.opts.MaxAttempts, r.opts.BatchSize)
	if err != nil {
		return err
	}
	for _, c := range claimed {
		r.deliver(ctx, s, c)
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, s store, c claimedMessage) {
	meta := c.Msg.Meta
	log := r.opts.Logger.WithFields(logFields(meta))

	dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
	start := time.Now()
	err := r.dispatcher.Dispatch(dispatchCtx, c.Msg)
	cancel()
	latency := time.Since(start)

	if err == nil {
		r.record(meta.Topic, "success", latency)
		if ackErr := s.ack(ctx, c.ID); ackErr != nil {
			log.WithError(ackErr).Warn("outbox: ack failed")
		}
		return
	}

	r.record(meta.Topic, "failure", latency)
	lastErr := truncateError(err, r.opts.LastErrorMaxLen)
	if meta.Attempts >= r.opts.MaxAttempts {
		r.m.deadTotal.WithLabelValues(r.tableLabel, meta.Topic).Inc()
		log.WithError(err).Error("outbox: message exhausted its attempts")
		if deadErr := s.dead(ctx, c.ID, lastErr); deadErr != nil {
			log.WithError(deadErr).Warn("outbox: dead update failed")
		}
		return
	}
	log.WithError(err).Warn("outbox: dispatch failed, rescheduling")
	if nackErr := s.nack(ctx, c.ID, lastErr, r.retry.next(r.now(), meta.Attempts)); nackErr != nil {
		log.WithError(nackErr).Warn("outbox: nack failed")
	}
}

func (r *Relay) observeDepth(ctx context.Context, s store) {
	pending, locked, err := s.depth(ctx)
	if err != nil {
		r.opts.Logger.WithError(err).Debug("outbox: observe queue depth failed")
		return
	}
	r.m.pending.WithLabelValues(r.tableLabel).Set(float64(pending))
	r.m.locked.WithLabelValues(r.tableLabel).Set(float64(locked))
}

func (r *Relay) record(topic, result string, latency time.Duration) {
	r.m.dispatchTotal.WithLabelValues(r.tableLabel, topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(r.tableLabel, topic, result).Observe(latency.Seconds())
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func logFields(meta Meta) logrus.Fields {
	return logrus.Fields{
		"table":    TableLabel(meta.Table),
		"stream":   meta.Stream,
		"topic":    meta.Topic,
		"event_id": meta.EventID.String(),
		"sequence": meta.Sequence,
		"attempts": meta.Attempts,
	}
}
