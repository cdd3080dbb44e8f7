package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner periodically deletes published messages older than Retention and,
// optionally, dead ones older than DeadRetention.
type Cleaner struct {
	store      purger
	tableLabel string
	opts       CleanerOptions
	m          *metrics
	now        func() time.Time
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	return newCleaner(newPgStore(pool, nil, table), table, opts)
}

func newCleaner(store purger, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if opts.DeadRetention > 0 && opts.DeadAttemptsThreshold <= 0 {
		return nil, invalidConfig("dead retention requires DeadAttemptsThreshold > 0")
	}
	opts.setDefaults()
	return &Cleaner{
		store:      store,
		tableLabel: TableLabel(table),
		opts:       opts,
		m:          getMetrics(),
		now:        time.Now,
	}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		return nil
	}
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := c.cleanOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).WithField("table", c.tableLabel).Warn("outbox: cleaner tick failed")
		}
	}
}

func (c *Cleaner) cleanOnce(ctx context.Context) error {
	now := c.now()
	var deadBefore time.Time
	if c.opts.DeadRetention > 0 {
		deadBefore = now.Add(-c.opts.DeadRetention)
	}
	published, dead, err := c.store.purge(ctx, now.Add(-c.opts.Retention), deadBefore, c.opts.DeadAttemptsThreshold)
	if err != nil {
		return err
	}
	c.m.purgedTotal.WithLabelValues(c.tableLabel, "published").Add(float64(published))
	c.m.purgedTotal.WithLabelValues(c.tableLabel, "dead").Add(float64(dead))
	if published+dead > 0 {
		c.opts.Logger.WithField("table", c.tableLabel).
			WithField("published", published).
			WithField("dead", dead).
			Debug("outbox: purged rows")
	}
	return nil
}
