package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type claimedMessage struct {
	ID  uuid.UUID
	Msg DispatchedMessage
}

// store is the relay's view of an outbox table.
type store interface {
	claim(ctx context.Context, now, lockCutoff time.Time, maxAttempts, limit int) ([]claimedMessage, error)
	ack(ctx context.Context, id uuid.UUID) error
	nack(ctx context.Context, id uuid.UUID, lastError string, availableAt time.Time) error
	dead(ctx context.Context, id uuid.UUID, lastError string) error
	depth(ctx context.Context) (pending, locked int64, err error)
}

// purger deletes finished rows. A zero deadBefore keeps dead rows.
type purger interface {
	purge(ctx context.Context, publishedBefore, deadBefore time.Time, deadAttempts int) (published, dead int64, err error)
}

// beginner is satisfied by *pgxpool.Pool and *pgxpool.Conn.
type beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgStore struct {
	db    beginner
	table pgx.Identifier
}

func newPgStore(pool *pgxpool.Pool, conn *pgxpool.Conn, table pgx.Identifier) *pgStore {
	if conn != nil {
		return &pgStore{db: conn, table: table}
	}
	return &pgStore{db: pool, table: table}
}

func (s *pgStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) claim(ctx context.Context, now, lockCutoff time.Time, maxAttempts, limit int) ([]claimedMessage, error) {
	name := s.table.Sanitize()
	selectQ := fmt.Sprintf(
		`SELECT id, stream, topic, payload, event_id, batch_id, sequence, attempts
		   FROM %s
		  WHERE published_at IS NULL
		    AND available_at <= $1
		    AND attempts < $2
		    AND (locked_at IS NULL OR locked_at < $3)
		  ORDER BY available_at, sequence
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`,
		name,
	)
	updateQ := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, name)

	var out []claimedMessage
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectQ, now, maxAttempts, lockCutoff, limit)
		if err != nil {
			return fmt.Errorf("outbox claim select: %w", err)
		}
		defer rows.Close()

		var ids []uuid.UUID
		for rows.Next() {
			var (
				c       claimedMessage
				batchID *uuid.UUID
			)
			m := &c.Msg.Meta
			if err := rows.Scan(&c.ID, &m.Stream, &m.Topic, &c.Msg.Payload, &m.EventID, &batchID, &m.Sequence, &m.Attempts); err != nil {
				return fmt.Errorf("outbox claim scan: %w", err)
			}
			if batchID != nil {
				m.BatchID = *batchID
			}
			m.Table = s.table
			m.Attempts++
			out = append(out, c)
			ids = append(ids, c.ID)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("outbox claim rows: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, updateQ, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return fmt.Errorf("outbox claim update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *pgStore) exec(ctx context.Context, op, q string, args ...any) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("outbox %s: %w", op, err)
		}
		return nil
	})
}

func (s *pgStore) ack(ctx context.Context, id uuid.UUID) error {
	q := fmt.Sprintf(
		`UPDATE %s SET published_at = now(), locked_at = NULL, last_error = NULL
		  WHERE id = $1 AND published_at IS NULL`,
		s.table.Sanitize(),
	)
	return s.exec(ctx, "ack", q, id)
}

func (s *pgStore) nack(ctx context.Context, id uuid.UUID, lastError string, availableAt time.Time) error {
	q := fmt.Sprintf(
		`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = $3
		  WHERE id = $1 AND published_at IS NULL`,
		s.table.Sanitize(),
	)
	return s.exec(ctx, "nack", q, id, lastError, availableAt)
}

func (s *pgStore) dead(ctx context.Context, id uuid.UUID, lastError string) error {
	q := fmt.Sprintf(
		`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = now()
		  WHERE id = $1 AND published_at IS NULL`,
		s.table.Sanitize(),
	)
	return s.exec(ctx, "dead", q, id, lastError)
}

func (s *pgStore) depth(ctx context.Context) (int64, int64, error) {
	q := fmt.Sprintf(
		`SELECT count(*), count(*) FILTER (WHERE locked_at IS NOT NULL)
		   FROM %s WHERE published_at IS NULL`,
		s.table.Sanitize(),
	)
	var pending, locked int64
	if err := s.db.QueryRow(ctx, q).Scan(&pending, &locked); err != nil {
		return 0, 0, fmt.Errorf("outbox depth: %w", err)
	}
	return pending, locked, nil
}

func (s *pgStore) purge(ctx context.Context, publishedBefore, deadBefore time.Time, deadAttempts int) (int64, int64, error) {
	name := s.table.Sanitize()
	var published, dead int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, name),
			publishedBefore,
		)
		if err != nil {
			return fmt.Errorf("outbox purge published: %w", err)
		}
		published = tag.RowsAffected()
		if deadBefore.IsZero() {
			return nil
		}
		tag, err = tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NULL AND attempts >= $1 AND created_at < $2`, name),
			deadAttempts, deadBefore,
		)
		if err != nil {
			return fmt.Errorf("outbox purge dead: %w", err)
		}
		dead = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return published, dead, nil
}
