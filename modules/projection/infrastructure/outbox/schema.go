package outbox

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/profile-projection/pkg/outbox"
	"github.com/iota-uz/profile-projection/pkg/repo"
)

// EnsureTables creates the given outbox tables when they are missing.
func EnsureTables(ctx context.Context, db repo.Tx, tables ...pgx.Identifier) error {
	for _, table := range tables {
		if _, err := db.Exec(ctx, outbox.CreateTableSQL(table)); err != nil {
			return errors.Wrapf(err, "create %s", outbox.TableLabel(table))
		}
	}
	return nil
}
