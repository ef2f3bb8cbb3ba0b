package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/family-ledger/internal/access"
)

// Service orchestrates transaction mutations: it authorizes the accounts a
// mutation touches, reverts and applies balance effects, and persists the
// transaction row, all inside one storage transaction.
type Service struct {
	store Store
	log   *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store: store,
		log:   logger,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreateTransactionRequest carries the caller-supplied fields for Create.
type CreateTransactionRequest struct {
	Type          TransactionType
	Amount        decimal.Decimal
	CategoryID    string
	FromAccountID string
	ToAccountID   string
	Description   string
	Date          time.Time
}

// CreateTransaction validates the request, requires write capability on
// every involved account, then persists the row and applies its balance
// effect as one atomic unit.
func (s *Service) CreateTransaction(ctx context.Context, familyID, userID string, req CreateTransactionRequest) (*Transaction, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}

	t := &Transaction{
		ID:              s.newID(),
		FamilyID:        familyID,
		CreatedByUserID: userID,
		Type:            req.Type,
		Amount:          req.Amount,
		CategoryID:      req.CategoryID,
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		Description:     req.Description,
		Date:            req.Date,
		CreatedAt:       s.now(),
	}
	if t.Date.IsZero() {
		t.Date = t.CreatedAt
	}
	if err := validateShape(t); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := s.requireWrite(ctx, tx, familyID, userID, t.AccountIDs()); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		return applyEffects(ctx, tx, t, +1)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	s.log.Info("transaction created",
		"transaction_id", t.ID,
		"family_id", familyID,
		"type", string(t.Type),
	)
	return t, nil
}

// UpdateTransactionRequest is a partial update: nil fields keep their prior
// values, set fields override. ToAccountID may point at an empty string to
// clear the target account explicitly.
type UpdateTransactionRequest struct {
	Type          *TransactionType
	Amount        *decimal.Decimal
	CategoryID    *string
	FromAccountID *string
	ToAccountID   *string
	Description   *string
	Date          *time.Time
}

// merge computes the final post-update state from the stored transaction and
// the request. Changing the type away from TRANSFER drops the to-account
// unless the request pins it explicitly; the shape re-validation would
// otherwise reject the carried-over value.
func (req UpdateTransactionRequest) merge(existing *Transaction) *Transaction {
	final := *existing
	if req.Type != nil {
		final.Type = *req.Type
		if final.Type != TypeTransfer && req.ToAccountID == nil {
			final.ToAccountID = ""
		}
	}
	if req.Amount != nil {
		final.Amount = *req.Amount
	}
	if req.CategoryID != nil {
		final.CategoryID = *req.CategoryID
	}
	if req.FromAccountID != nil {
		final.FromAccountID = *req.FromAccountID
	}
	if req.ToAccountID != nil {
		final.ToAccountID = *req.ToAccountID
	}
	if req.Description != nil {
		final.Description = *req.Description
	}
	if req.Date != nil {
		final.Date = *req.Date
	}
	return &final
}

// UpdateTransaction re-points a transaction at its final merged state. Write
// capability is required on the union of accounts referenced by the old and
// the final state: the caller must not move an effect onto an account they
// cannot write, nor leave an account they cannot write in a changed state.
// Revert of the old effect and apply of the final effect commit together.
func (s *Service) UpdateTransaction(ctx context.Context, familyID, userID, transactionID string, req UpdateTransactionRequest) (*Transaction, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}

	var final *Transaction
	err := s.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.Transaction(ctx, familyID, transactionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return errTransactionNotFound(transactionID)
		}

		final = req.merge(existing)
		if err := validateShape(final); err != nil {
			return err
		}

		union := unionAccountIDs(existing, final)
		if err := s.requireWrite(ctx, tx, familyID, userID, union); err != nil {
			return err
		}

		if err := applyEffects(ctx, tx, existing, -1); err != nil {
			return err
		}
		if err := applyEffects(ctx, tx, final, +1); err != nil {
			return err
		}
		return tx.UpdateTransaction(ctx, final)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	s.log.Info("transaction updated", "transaction_id", transactionID, "family_id", familyID)
	return final, nil
}

// DeleteTransaction reverts the transaction's effect and marks the row
// soft-deleted. Soft-deleted rows are permanently excluded from balance math.
func (s *Service) DeleteTransaction(ctx context.Context, familyID, userID, transactionID string) error {
	if familyID == "" || userID == "" {
		return errUnauthenticated()
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.Transaction(ctx, familyID, transactionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return errTransactionNotFound(transactionID)
		}
		if err := s.requireWrite(ctx, tx, familyID, userID, existing.AccountIDs()); err != nil {
			return err
		}
		if err := applyEffects(ctx, tx, existing, -1); err != nil {
			return err
		}
		return tx.SoftDeleteTransaction(ctx, familyID, transactionID, s.now())
	})
	if err != nil {
		return wrapStorage(err)
	}

	s.log.Info("transaction deleted", "transaction_id", transactionID, "family_id", familyID)
	return nil
}

// GetTransaction returns one transaction if the caller can read at least one
// of its referenced accounts. Invisible transactions surface as NotFound so
// their existence leaks nothing.
func (s *Service) GetTransaction(ctx context.Context, familyID, userID, transactionID string) (*Transaction, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}

	t, err := s.store.Transaction(ctx, familyID, transactionID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if t == nil {
		return nil, errTransactionNotFound(transactionID)
	}

	visible, err := s.canReadAny(ctx, familyID, userID, t)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, errTransactionNotFound(transactionID)
	}
	return t, nil
}

// ListTransactions returns the transactions matching the filter that the
// caller can see. A transaction is visible when the caller can read any of
// its referenced accounts, deliberately an OR: an entry moving money between
// "my" account and someone's private account stays visible to me.
func (s *Service) ListTransactions(ctx context.Context, familyID, userID string, f TransactionFilter) ([]*Transaction, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}

	all, err := s.store.Transactions(ctx, familyID, f)
	if err != nil {
		return nil, wrapStorage(err)
	}

	levels, err := s.accessLevels(ctx, familyID, userID)
	if err != nil {
		return nil, err
	}

	visible := make([]*Transaction, 0, len(all))
	for _, t := range all {
		for _, id := range t.AccountIDs() {
			if levels[id].CanRead() {
				visible = append(visible, t)
				break
			}
		}
	}
	return visible, nil
}

// requireWrite loads each account within the family and demands write
// capability on all of them. A missing account is NotFound, a readable but
// unwritable one is Forbidden naming the account; either way the check runs
// before any balance delta is written.
func (s *Service) requireWrite(ctx context.Context, tx Tx, familyID, userID string, accountIDs []string) error {
	for _, id := range accountIDs {
		a, err := tx.Account(ctx, familyID, id)
		if err != nil {
			return err
		}
		if a == nil {
			return errAccountNotFound(id)
		}
		level := access.Evaluate(a.OwnerUserID, a.Visibility, a.Shares, userID)
		if !level.CanWrite() {
			return errForbiddenAccount(id)
		}
	}
	return nil
}

func (s *Service) canReadAny(ctx context.Context, familyID, userID string, t *Transaction) (bool, error) {
	for _, id := range t.AccountIDs() {
		a, err := s.store.Account(ctx, familyID, id)
		if err != nil {
			return false, wrapStorage(err)
		}
		if a == nil {
			continue
		}
		if access.Evaluate(a.OwnerUserID, a.Visibility, a.Shares, userID).CanRead() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) accessLevels(ctx context.Context, familyID, userID string) (map[string]access.Level, error) {
	accounts, err := s.store.Accounts(ctx, familyID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	levels := make(map[string]access.Level, len(accounts))
	for _, a := range accounts {
		levels[a.ID] = access.Evaluate(a.OwnerUserID, a.Visibility, a.Shares, userID)
	}
	return levels, nil
}

func unionAccountIDs(old, final *Transaction) []string {
	seen := make(map[string]struct{}, 4)
	ids := make([]string, 0, 4)
	for _, id := range append(old.AccountIDs(), final.AccountIDs()...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
