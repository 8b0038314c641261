package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a storage transaction and hands the
// transaction handle to fn as tx. Repositories accept that handle (or nil for
// the non-transactional path) and lock rows with FOR UPDATE when they see one.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// AdvisoryLocker serializes work on a key for the lifetime of the current
// transaction.
type AdvisoryLocker interface {
	AdvisoryXactLock(ctx context.Context, tx Tx, key string) error
}
