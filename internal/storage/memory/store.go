// Package memory implements ledger.Store on in-process maps. It backs the
// core unit tests and the development mode of cmd/server.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/family-ledger/internal/ledger"
)

// Store holds accounts and transactions behind one mutex. InTx stages every
// write in a per-transaction buffer and merges it only when the unit
// succeeds, so a failing unit leaves no partial state — the same contract
// the postgres store gets from real transactions.
type Store struct {
	mu           sync.Mutex
	accounts     map[string]*ledger.Account
	transactions map[string]*ledger.Transaction

	// commitErr, when set, fails the next InTx at commit time. Test hook for
	// the storage-failure paths.
	commitErr error
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]*ledger.Account),
		transactions: make(map[string]*ledger.Transaction),
	}
}

var _ ledger.Store = (*Store)(nil)

// FailNextCommit makes the next atomic unit fail after its body has run,
// simulating a commit-time storage failure.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// InTx runs fn against a buffered view. Holding the store mutex for the
// whole unit gives the single-writer serialization the ledger requires.
func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:        s,
		accounts:     make(map[string]*ledger.Account),
		transactions: make(map[string]*ledger.Transaction),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if s.commitErr != nil {
		err := s.commitErr
		s.commitErr = nil
		return err
	}

	for id, a := range tx.accounts {
		s.accounts[id] = a
	}
	for id, t := range tx.transactions {
		s.transactions[id] = t
	}
	return nil
}

func (s *Store) Account(ctx context.Context, familyID, accountID string) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAccount(s.lookupAccount(familyID, accountID)), nil
}

func (s *Store) Accounts(ctx context.Context, familyID string) ([]*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if a.FamilyID == familyID && a.DeletedAt == nil {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Transaction(ctx context.Context, familyID, transactionID string) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTransaction(s.lookupTransaction(familyID, transactionID)), nil
}

func (s *Store) Transactions(ctx context.Context, familyID string, f ledger.TransactionFilter) ([]*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ledger.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if t.FamilyID != familyID || t.DeletedAt != nil {
			continue
		}
		if !matches(t, f) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (s *Store) SoftDeleteAccount(ctx context.Context, familyID, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.lookupAccount(familyID, accountID)
	if a == nil {
		return nil
	}
	deleted := at
	a.DeletedAt = &deleted
	a.UpdatedAt = at
	return nil
}

func (s *Store) lookupAccount(familyID, accountID string) *ledger.Account {
	a, ok := s.accounts[accountID]
	if !ok || a.FamilyID != familyID || a.DeletedAt != nil {
		return nil
	}
	return a
}

func (s *Store) lookupTransaction(familyID, transactionID string) *ledger.Transaction {
	t, ok := s.transactions[transactionID]
	if !ok || t.FamilyID != familyID || t.DeletedAt != nil {
		return nil
	}
	return t
}

// memTx is the buffered view inside one atomic unit. Reads prefer staged
// copies; writes only touch the stage.
type memTx struct {
	store        *Store
	accounts     map[string]*ledger.Account
	transactions map[string]*ledger.Transaction
}

var _ ledger.Tx = (*memTx)(nil)

func (tx *memTx) Account(ctx context.Context, familyID, accountID string) (*ledger.Account, error) {
	if a, ok := tx.accounts[accountID]; ok {
		if a.FamilyID != familyID || a.DeletedAt != nil {
			return nil, nil
		}
		return cloneAccount(a), nil
	}
	return cloneAccount(tx.store.lookupAccount(familyID, accountID)), nil
}

func (tx *memTx) Transaction(ctx context.Context, familyID, transactionID string) (*ledger.Transaction, error) {
	if t, ok := tx.transactions[transactionID]; ok {
		if t.FamilyID != familyID || t.DeletedAt != nil {
			return nil, nil
		}
		return cloneTransaction(t), nil
	}
	return cloneTransaction(tx.store.lookupTransaction(familyID, transactionID)), nil
}

func (tx *memTx) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	tx.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (tx *memTx) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	tx.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (tx *memTx) SoftDeleteTransaction(ctx context.Context, familyID, transactionID string, at time.Time) error {
	t, err := tx.Transaction(ctx, familyID, transactionID)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	deleted := at
	t.DeletedAt = &deleted
	tx.transactions[t.ID] = t
	return nil
}

func (tx *memTx) AddToBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	a := tx.stagedAccount(accountID)
	if a == nil {
		return nil
	}
	a.CurrentBalance = a.CurrentBalance.Add(delta)
	return nil
}

func (tx *memTx) SetReconciled(ctx context.Context, accountID string, balance decimal.Decimal, at time.Time) error {
	a := tx.stagedAccount(accountID)
	if a == nil {
		return nil
	}
	when := at
	bal := balance
	a.LastReconciledAt = &when
	a.LastReconciledBalance = &bal
	a.UpdatedAt = at
	return nil
}

// stagedAccount returns the writable staged copy of an account, pulling it
// into the stage on first touch.
func (tx *memTx) stagedAccount(accountID string) *ledger.Account {
	if a, ok := tx.accounts[accountID]; ok {
		return a
	}
	src, ok := tx.store.accounts[accountID]
	if !ok {
		return nil
	}
	a := cloneAccount(src)
	tx.accounts[accountID] = a
	return a
}

func matches(t *ledger.Transaction, f ledger.TransactionFilter) bool {
	if f.AccountID != "" && t.FromAccountID != f.AccountID && t.ToAccountID != f.AccountID {
		return false
	}
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.From != nil && t.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && t.Date.After(*f.To) {
		return false
	}
	return true
}

func cloneAccount(a *ledger.Account) *ledger.Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Shares = append(out.Shares[:0:0], a.Shares...)
	if a.LastReconciledAt != nil {
		at := *a.LastReconciledAt
		out.LastReconciledAt = &at
	}
	if a.LastReconciledBalance != nil {
		bal := *a.LastReconciledBalance
		out.LastReconciledBalance = &bal
	}
	if a.DeletedAt != nil {
		at := *a.DeletedAt
		out.DeletedAt = &at
	}
	return &out
}

func cloneTransaction(t *ledger.Transaction) *ledger.Transaction {
	if t == nil {
		return nil
	}
	out := *t
	if t.DeletedAt != nil {
		at := *t.DeletedAt
		out.DeletedAt = &at
	}
	return &out
}
