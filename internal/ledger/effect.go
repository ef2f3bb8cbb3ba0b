package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// delta is one signed balance change against one account.
type delta struct {
	AccountID string
	Amount    decimal.Decimal
}

// effects expands a transaction into its balance deltas. sign +1 applies the
// transaction, sign -1 reverts it:
//
//	INCOME    from += sign*amount
//	EXPENSE   from -= sign*amount
//	TRANSFER  from -= sign*amount, to += sign*amount
//
// Reverting always uses the stored (pre-change) transaction, applying the
// new (post-change) one, so an update touching four accounts is just the
// concatenation of two effect lists.
func effects(t *Transaction, sign int64) ([]delta, error) {
	if err := validateShape(t); err != nil {
		return nil, err
	}
	amt := t.Amount.Mul(decimal.NewFromInt(sign))
	switch t.Type {
	case TypeIncome:
		return []delta{{AccountID: t.FromAccountID, Amount: amt}}, nil
	case TypeExpense:
		return []delta{{AccountID: t.FromAccountID, Amount: amt.Neg()}}, nil
	default: // TypeTransfer, validated above
		return []delta{
			{AccountID: t.FromAccountID, Amount: amt.Neg()},
			{AccountID: t.ToAccountID, Amount: amt},
		}, nil
	}
}

// applyEffects writes a transaction's deltas to the accounts inside the
// current storage transaction.
func applyEffects(ctx context.Context, tx Tx, t *Transaction, sign int64) error {
	deltas, err := effects(t, sign)
	if err != nil {
		return err
	}
	for _, d := range deltas {
		if err := tx.AddToBalance(ctx, d.AccountID, d.Amount); err != nil {
			return err
		}
	}
	return nil
}
