package outbox

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// CreateTableSQL returns the DDL of an outbox table. Messages are delivered
// in (available_at, sequence) order; event_id makes enqueueing idempotent.
func CreateTableSQL(table pgx.Identifier) string {
	name := table.Sanitize()
	base := strings.ReplaceAll(TableLabel(table), ".", "_")
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
  id           UUID        NOT NULL DEFAULT gen_random_uuid(),
  stream       TEXT        NOT NULL,
  topic        TEXT        NOT NULL,
  payload      JSONB       NOT NULL,
  event_id     UUID        NOT NULL,
  batch_id     UUID        NULL,
  sequence     BIGSERIAL   NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  published_at TIMESTAMPTZ NULL,
  attempts     INT         NOT NULL DEFAULT 0,
  available_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  locked_at    TIMESTAMPTZ NULL,
  last_error   TEXT        NULL,
  CONSTRAINT %[2]s_pkey PRIMARY KEY (id),
  CONSTRAINT %[2]s_event_id_key UNIQUE (event_id),
  CONSTRAINT %[2]s_attempts_nonnegative CHECK (attempts >= 0)
);
CREATE INDEX IF NOT EXISTS %[2]s_pending_idx ON %[1]s (available_at, sequence) WHERE published_at IS NULL;`,
		name, base)
}
