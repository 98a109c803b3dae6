package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque, infra-defined transaction handle (pgx.Tx for Postgres).
type Tx interface{}

// NoTX runs a repository call outside any transaction.
var NoTX interface{}

// TransactionManager runs fn inside a database transaction, passing the handle
// as tx. Repositories that receive a live tx lock the rows they read
// (SELECT ... FOR UPDATE) and bind their writes to it; a nil tx runs against
// the pool.
//
//	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//	    inv, err := invoices.FindByGatewayID(ctx, tx, id)
//	    ...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
