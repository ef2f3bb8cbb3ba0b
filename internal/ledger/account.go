package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/example/family-ledger/internal/access"
)

// Account CRUD is a thin collaborator around the store: no balance math
// happens here beyond seeding the initial balance. Balances only ever change
// through the transaction mutation paths.

// CreateAccountRequest carries the caller-supplied fields for CreateAccount.
type CreateAccountRequest struct {
	Name           string
	Type           AccountType
	Currency       string
	InitialBalance decimal.Decimal
	Visibility     access.Visibility
	Shares         access.ShareList
}

// CreateAccount creates an account owned by the caller. Visibility defaults
// to FAMILY, matching the joint-by-default model.
func (s *Service) CreateAccount(ctx context.Context, familyID, userID string, req CreateAccountRequest) (*Account, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}
	if req.Name == "" {
		return nil, invalidf("account name is required")
	}
	if !req.Type.Valid() {
		return nil, invalidf("unknown account type %q", req.Type)
	}
	if req.Visibility == "" {
		req.Visibility = access.VisibilityFamily
	}
	if !req.Visibility.Valid() {
		return nil, invalidf("unknown visibility %q", req.Visibility)
	}
	if err := req.Shares.Validate(); err != nil {
		return nil, invalidf("invalid shares: %v", err)
	}

	now := s.now()
	a := &Account{
		ID:             s.newID(),
		FamilyID:       familyID,
		OwnerUserID:    userID,
		Name:           req.Name,
		Type:           req.Type,
		Currency:       req.Currency,
		Visibility:     req.Visibility,
		Shares:         req.Shares,
		InitialBalance: req.InitialBalance,
		CurrentBalance: req.InitialBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, wrapStorage(err)
	}

	s.log.Info("account created", "account_id", a.ID, "family_id", familyID)
	return a, nil
}

// GetAccount returns one account if the caller can read it.
func (s *Service) GetAccount(ctx context.Context, familyID, userID, accountID string) (*AccountView, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}

	a, err := s.store.Account(ctx, familyID, accountID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if a == nil {
		return nil, errAccountNotFound(accountID)
	}

	level := access.Evaluate(a.OwnerUserID, a.Visibility, a.Shares, userID)
	if !level.CanRead() {
		return nil, errAccountNotFound(accountID)
	}
	return &AccountView{Account: a, Access: level}, nil
}

// ListAccounts returns the family's accounts the caller can read, each
// annotated with the caller's capability level.
func (s *Service) ListAccounts(ctx context.Context, familyID, userID string) ([]*AccountView, error) {
	if familyID == "" || userID == "" {
		return nil, errUnauthenticated()
	}

	accounts, err := s.store.Accounts(ctx, familyID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	views := make([]*AccountView, 0, len(accounts))
	for _, a := range accounts {
		level := access.Evaluate(a.OwnerUserID, a.Visibility, a.Shares, userID)
		if !level.CanRead() {
			continue
		}
		views = append(views, &AccountView{Account: a, Access: level})
	}
	return views, nil
}

// DeleteAccount soft-deletes an account. Write capability is required since
// hiding an account changes what the ledger invariant ranges over.
func (s *Service) DeleteAccount(ctx context.Context, familyID, userID, accountID string) error {
	if familyID == "" || userID == "" {
		return errUnauthenticated()
	}

	a, err := s.store.Account(ctx, familyID, accountID)
	if err != nil {
		return wrapStorage(err)
	}
	if a == nil {
		return errAccountNotFound(accountID)
	}
	if !access.Evaluate(a.OwnerUserID, a.Visibility, a.Shares, userID).CanWrite() {
		return errForbiddenAccount(accountID)
	}

	if err := s.store.SoftDeleteAccount(ctx, familyID, accountID, s.now()); err != nil {
		return wrapStorage(err)
	}
	s.log.Info("account deleted", "account_id", accountID, "family_id", familyID)
	return nil
}
