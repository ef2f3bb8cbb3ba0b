package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionFilter narrows List queries. Zero values mean "no constraint".
type TransactionFilter struct {
	AccountID  string
	CategoryID string
	Type       TransactionType
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Tx is the view of storage inside one atomic unit. Every balance-affecting
// mutation (revert + apply + row write) runs against a single Tx; if the unit
// fails, none of its writes are observable.
//
// Lookups are family-scoped and exclude soft-deleted rows; they return
// (nil, nil) when no row matches.
type Tx interface {
	Account(ctx context.Context, familyID, accountID string) (*Account, error)
	Transaction(ctx context.Context, familyID, transactionID string) (*Transaction, error)

	InsertTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t *Transaction) error
	SoftDeleteTransaction(ctx context.Context, familyID, transactionID string, at time.Time) error

	AddToBalance(ctx context.Context, accountID string, delta decimal.Decimal) error
	SetReconciled(ctx context.Context, accountID string, balance decimal.Decimal, at time.Time) error
}

// Store is the storage contract the ledger core runs on. InTx must provide
// serializable-or-stronger isolation: two concurrent mutations touching a
// shared account must not interleave their revert/apply halves. A storage
// implementation may transparently retry fn on a serialization conflict, but
// only ever as a whole.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	Account(ctx context.Context, familyID, accountID string) (*Account, error)
	Accounts(ctx context.Context, familyID string) ([]*Account, error)
	Transaction(ctx context.Context, familyID, transactionID string) (*Transaction, error)
	Transactions(ctx context.Context, familyID string, f TransactionFilter) ([]*Transaction, error)

	CreateAccount(ctx context.Context, a *Account) error
	SoftDeleteAccount(ctx context.Context, familyID, accountID string, at time.Time) error
}
