// Package ledger keeps account balances consistent as transactions are
// created, edited, and deleted. Every balance write in the system goes
// through the apply/revert primitive in this package, inside one storage
// transaction per logical mutation.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/family-ledger/internal/access"
)

// AccountType is carried for display and filtering only; it does not change
// balance math.
type AccountType string

const (
	AccountCash       AccountType = "CASH"
	AccountBank       AccountType = "BANK"
	AccountCredit     AccountType = "CREDIT"
	AccountLoan       AccountType = "LOAN"
	AccountInvestment AccountType = "INVESTMENT"
	AccountWallet     AccountType = "WALLET"
	AccountAsset      AccountType = "ASSET"
	AccountOther      AccountType = "OTHER"
)

var accountTypes = map[AccountType]struct{}{
	AccountCash: {}, AccountBank: {}, AccountCredit: {}, AccountLoan: {},
	AccountInvestment: {}, AccountWallet: {}, AccountAsset: {}, AccountOther: {},
}

func (t AccountType) Valid() bool {
	_, ok := accountTypes[t]
	return ok
}

type TransactionType string

const (
	TypeIncome   TransactionType = "INCOME"
	TypeExpense  TransactionType = "EXPENSE"
	TypeTransfer TransactionType = "TRANSFER"
)

func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense || t == TypeTransfer
}

// Account is a balance-holding entity scoped to one family.
//
// CurrentBalance always equals InitialBalance plus the signed effect of every
// non-deleted transaction referencing the account; preserving that invariant
// is this package's job. The balance is mutated exclusively through the
// apply/revert path, never written directly.
type Account struct {
	ID          string            `json:"id"`
	FamilyID    string            `json:"family_id"`
	OwnerUserID string            `json:"owner_user_id,omitempty"`
	Name        string            `json:"name"`
	Type        AccountType       `json:"type"`
	Currency    string            `json:"currency"`
	Visibility  access.Visibility `json:"visibility"`
	Shares      access.ShareList  `json:"shares,omitempty"`

	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`

	LastReconciledAt      *time.Time       `json:"last_reconciled_at,omitempty"`
	LastReconciledBalance *decimal.Decimal `json:"last_reconciled_balance,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// AccountView is an account annotated with the caller's capability level.
type AccountView struct {
	*Account
	Access access.Level `json:"access"`
}

// Transaction is an event that moves money into, out of, or between
// accounts. Amount is stored non-negative; the sign of its balance effect
// derives from Type. Rows are soft-deleted, never removed.
type Transaction struct {
	ID              string          `json:"id"`
	FamilyID        string          `json:"family_id"`
	CreatedByUserID string          `json:"created_by_user_id"`
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	CategoryID      string          `json:"category_id,omitempty"`
	FromAccountID   string          `json:"from_account_id,omitempty"`
	ToAccountID     string          `json:"to_account_id,omitempty"`
	Description     string          `json:"description,omitempty"`
	Date            time.Time       `json:"transaction_date"`
	CreatedAt       time.Time       `json:"created_at"`
	DeletedAt       *time.Time      `json:"-"`
}

// AccountIDs returns the distinct, non-empty account ids the transaction
// references (from first, then to).
func (t *Transaction) AccountIDs() []string {
	ids := make([]string, 0, 2)
	if t.FromAccountID != "" {
		ids = append(ids, t.FromAccountID)
	}
	if t.ToAccountID != "" && t.ToAccountID != t.FromAccountID {
		ids = append(ids, t.ToAccountID)
	}
	return ids
}

// validateShape enforces the per-type field invariants before any balance
// math runs: TRANSFER needs distinct from and to, INCOME/EXPENSE need
// exactly from, and the stored amount is never negative.
func validateShape(t *Transaction) error {
	if !t.Type.Valid() {
		return invalidf("unknown transaction type %q", t.Type)
	}
	if t.Amount.IsNegative() {
		return invalidf("amount must not be negative")
	}
	switch t.Type {
	case TypeTransfer:
		if t.FromAccountID == "" || t.ToAccountID == "" {
			return invalidf("transfer requires both from_account_id and to_account_id")
		}
		if t.FromAccountID == t.ToAccountID {
			return invalidf("transfer accounts must be distinct")
		}
	default:
		if t.FromAccountID == "" {
			return invalidf("%s requires from_account_id", t.Type)
		}
		if t.ToAccountID != "" {
			return invalidf("%s must not set to_account_id", t.Type)
		}
	}
	return nil
}
