package port

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor runs one unit of work inside a single managed database
// transaction. Connection acquisition, commit/rollback, and return to the
// pool are handled by the implementation; fn must not retain the Tx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}
