package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/example/family-ledger/internal/access"
)

// ReconcileDescription tags the synthesized adjustment transaction.
const ReconcileDescription = "Balance Adjustment (Reconcile)"

// reconcileEpsilon is one minor unit in the account's currency; differences
// below it record metadata only.
var reconcileEpsilon = decimal.New(1, -2) // 0.01

// ReconcileResult reports whether an adjustment transaction was created and
// the signed difference that drove the decision.
type ReconcileResult struct {
	Adjusted bool            `json:"adjusted"`
	Diff     decimal.Decimal `json:"diff"`
}

// Reconcile brings an account's stored balance to the user-asserted actual
// balance. Within epsilon it only stamps the last-reconciled metadata.
// Otherwise it synthesizes one adjustment transaction, INCOME for found
// money and EXPENSE for lost money, amount |diff|, against the reconciled
// account, and runs it through the same atomic apply path as any other
// create; reconciliation never bypasses the ledger. After commit the balance
// equals the asserted value exactly, since the diff cancels by construction.
func (s *Service) Reconcile(ctx context.Context, familyID, userID, accountID string, asserted decimal.Decimal) (*ReconcileResult, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}

	var res *ReconcileResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		a, err := tx.Account(ctx, familyID, accountID)
		if err != nil {
			return err
		}
		if a == nil {
			return errAccountNotFound(accountID)
		}
		if !access.Evaluate(a.OwnerUserID, a.Visibility, a.Shares, userID).CanWrite() {
			return errForbiddenAccount(accountID)
		}

		now := s.now()
		diff := asserted.Sub(a.CurrentBalance)
		res = &ReconcileResult{Diff: diff}

		if diff.Abs().LessThan(reconcileEpsilon) {
			// Balance already matches; metadata is still stamped.
			return tx.SetReconciled(ctx, accountID, asserted, now)
		}

		adj := &Transaction{
			ID:              s.newID(),
			FamilyID:        familyID,
			CreatedByUserID: userID,
			Type:            TypeIncome,
			Amount:          diff.Abs(),
			FromAccountID:   accountID,
			Description:     ReconcileDescription,
			Date:            now,
			CreatedAt:       now,
		}
		if diff.IsNegative() {
			adj.Type = TypeExpense
		}

		if err := tx.InsertTransaction(ctx, adj); err != nil {
			return err
		}
		if err := applyEffects(ctx, tx, adj, +1); err != nil {
			return err
		}
		res.Adjusted = true
		return tx.SetReconciled(ctx, accountID, asserted, now)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	s.log.Info("account reconciled",
		"account_id", accountID,
		"family_id", familyID,
		"adjusted", res.Adjusted,
		"diff", res.Diff.String(),
	)
	return res, nil
}
