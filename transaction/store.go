package transaction

import (
	"context"

	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/id"
)

// Store persists transactions.
//
// PostTransaction is a single atomic unit. It fails with the period-closed
// or day-locked sentinel if the enclosing period or day no longer accepts
// writes. It inserts t, folds t into the day totals and appends entry when
// non-nil. If the (outlet, idempotency key) pair already exists, the
// stored original is returned with created == false and nothing is
// written.
type Store interface {
	PostTransaction(ctx context.Context, t *Transaction, entry *audit.Entry) (stored *Transaction, created bool, err error)
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*Transaction, error)
	GetTransactionByKey(ctx context.Context, outletID, key string) (*Transaction, error)
	ListTransactions(ctx context.Context, opts ListOpts) ([]*Transaction, error)
}
