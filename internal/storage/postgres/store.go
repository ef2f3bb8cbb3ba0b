// Package postgres implements ledger.Store on a pgx pool. Every atomic unit
// runs in a SERIALIZABLE transaction; serialization conflicts re-run the
// whole unit, never half of it.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/family-ledger/internal/access"
	"github.com/example/family-ledger/internal/ledger"
)

const serializationFailure = "40001"

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ ledger.Store = (*Store)(nil)

// EnsureSchema creates the tables the store expects. Balances are NUMERIC,
// never floating point; deletions are timestamps, never DELETE.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id                      TEXT PRIMARY KEY,
    family_id               TEXT NOT NULL,
    owner_user_id           TEXT,
    name                    TEXT NOT NULL,
    type                    TEXT NOT NULL,
    currency                TEXT NOT NULL DEFAULT '',
    visibility              TEXT NOT NULL DEFAULT 'FAMILY',
    shares                  JSONB NOT NULL DEFAULT '[]',
    initial_balance         NUMERIC NOT NULL DEFAULT 0,
    current_balance         NUMERIC NOT NULL DEFAULT 0,
    last_reconciled_at      TIMESTAMPTZ,
    last_reconciled_balance NUMERIC,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at              TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_accounts_family ON accounts (family_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS transactions (
    id                 TEXT PRIMARY KEY,
    family_id          TEXT NOT NULL,
    created_by_user_id TEXT NOT NULL,
    type               TEXT NOT NULL,
    amount             NUMERIC NOT NULL CHECK (amount >= 0),
    category_id        TEXT,
    from_account_id    TEXT,
    to_account_id      TEXT,
    description        TEXT NOT NULL DEFAULT '',
    transaction_date   TIMESTAMPTZ NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_transactions_family_date ON transactions (family_id, transaction_date DESC) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions (from_account_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions (to_account_id) WHERE deleted_at IS NULL;
`

// InTx runs fn in a SERIALIZABLE transaction, retrying the whole unit up to
// three times on SQLSTATE 40001 with linear backoff.
func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	const maxRetries = 3

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
			if attempt < maxRetries-1 {
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("transaction aborted after %d serialization retries: %w", maxRetries, err)
		}
		return err
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ledger.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const accountColumns = `
    id, family_id, COALESCE(owner_user_id, ''), name, type, currency,
    visibility, shares,
    initial_balance::text, current_balance::text,
    last_reconciled_at, last_reconciled_balance::text,
    created_at, updated_at`

func (s *Store) Account(ctx context.Context, familyID, accountID string) (*ledger.Account, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE id = $1 AND family_id = $2 AND deleted_at IS NULL
    `, accountID, familyID)
	return scanAccount(row)
}

func (s *Store) Accounts(ctx context.Context, familyID string) ([]*ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE family_id = $1 AND deleted_at IS NULL
        ORDER BY name
    `, familyID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const transactionColumns = `
    id, family_id, created_by_user_id, type, amount::text,
    COALESCE(category_id, ''), COALESCE(from_account_id, ''), COALESCE(to_account_id, ''),
    description, transaction_date, created_at`

func (s *Store) Transaction(ctx context.Context, familyID, transactionID string) (*ledger.Transaction, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+transactionColumns+`
        FROM transactions
        WHERE id = $1 AND family_id = $2 AND deleted_at IS NULL
    `, transactionID, familyID)
	return scanTransaction(row)
}

func (s *Store) Transactions(ctx context.Context, familyID string, f ledger.TransactionFilter) ([]*ledger.Transaction, error) {
	query := `
        SELECT ` + transactionColumns + `
        FROM transactions
        WHERE family_id = $1 AND deleted_at IS NULL`
	args := []any{familyID}

	if f.AccountID != "" {
		args = append(args, f.AccountID)
		query += fmt.Sprintf(" AND (from_account_id = $%d OR to_account_id = $%d)", len(args), len(args))
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	query += " ORDER BY transaction_date DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateAccount(ctx context.Context, a *ledger.Account) error {
	shares, err := json.Marshal(a.Shares)
	if err != nil {
		return fmt.Errorf("marshal shares: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO accounts (
            id, family_id, owner_user_id, name, type, currency, visibility,
            shares, initial_balance, current_balance, created_at, updated_at
        ) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, a.ID, a.FamilyID, a.OwnerUserID, a.Name, string(a.Type), a.Currency,
		string(a.Visibility), shares, a.InitialBalance.String(), a.CurrentBalance.String(),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) SoftDeleteAccount(ctx context.Context, familyID, accountID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE accounts SET deleted_at = $3, updated_at = $3
        WHERE id = $1 AND family_id = $2 AND deleted_at IS NULL
    `, accountID, familyID, at)
	if err != nil {
		return fmt.Errorf("soft delete account: %w", err)
	}
	return nil
}

// pgTx adapts a pgx transaction to ledger.Tx. Account rows are locked with
// FOR UPDATE on first read so concurrent units serialize on shared accounts
// even before the serializable check fires.
type pgTx struct {
	tx pgx.Tx
}

var _ ledger.Tx = (*pgTx)(nil)

func (p *pgTx) Account(ctx context.Context, familyID, accountID string) (*ledger.Account, error) {
	row := p.tx.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE id = $1 AND family_id = $2 AND deleted_at IS NULL
        FOR UPDATE
    `, accountID, familyID)
	return scanAccount(row)
}

func (p *pgTx) Transaction(ctx context.Context, familyID, transactionID string) (*ledger.Transaction, error) {
	row := p.tx.QueryRow(ctx, `
        SELECT `+transactionColumns+`
        FROM transactions
        WHERE id = $1 AND family_id = $2 AND deleted_at IS NULL
        FOR UPDATE
    `, transactionID, familyID)
	return scanTransaction(row)
}

func (p *pgTx) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	_, err := p.tx.Exec(ctx, `
        INSERT INTO transactions (
            id, family_id, created_by_user_id, type, amount, category_id,
            from_account_id, to_account_id, description, transaction_date, created_at
        ) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
    `, t.ID, t.FamilyID, t.CreatedByUserID, string(t.Type), t.Amount.String(),
		t.CategoryID, t.FromAccountID, t.ToAccountID, t.Description, t.Date, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *pgTx) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	tag, err := p.tx.Exec(ctx, `
        UPDATE transactions SET
            type = $3, amount = $4, category_id = NULLIF($5, ''),
            from_account_id = NULLIF($6, ''), to_account_id = NULLIF($7, ''),
            description = $8, transaction_date = $9
        WHERE id = $1 AND family_id = $2 AND deleted_at IS NULL
    `, t.ID, t.FamilyID, string(t.Type), t.Amount.String(), t.CategoryID,
		t.FromAccountID, t.ToAccountID, t.Description, t.Date)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update transaction %s: no row", t.ID)
	}
	return nil
}

func (p *pgTx) SoftDeleteTransaction(ctx context.Context, familyID, transactionID string, at time.Time) error {
	_, err := p.tx.Exec(ctx, `
        UPDATE transactions SET deleted_at = $3
        WHERE id = $1 AND family_id = $2 AND deleted_at IS NULL
    `, transactionID, familyID, at)
	if err != nil {
		return fmt.Errorf("soft delete transaction: %w", err)
	}
	return nil
}

func (p *pgTx) AddToBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	_, err := p.tx.Exec(ctx, `
        UPDATE accounts SET current_balance = current_balance + $2::numeric, updated_at = now()
        WHERE id = $1 AND deleted_at IS NULL
    `, accountID, delta.String())
	if err != nil {
		return fmt.Errorf("adjust balance for account %s: %w", accountID, err)
	}
	return nil
}

func (p *pgTx) SetReconciled(ctx context.Context, accountID string, balance decimal.Decimal, at time.Time) error {
	_, err := p.tx.Exec(ctx, `
        UPDATE accounts SET last_reconciled_at = $2, last_reconciled_balance = $3::numeric, updated_at = $2
        WHERE id = $1 AND deleted_at IS NULL
    `, accountID, at, balance.String())
	if err != nil {
		return fmt.Errorf("set reconciled for account %s: %w", accountID, err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var (
		a                 ledger.Account
		shares            []byte
		initial, current  string
		reconciledAt      *time.Time
		reconciledBalance *string
		typ, vis          string
	)
	err := row.Scan(
		&a.ID, &a.FamilyID, &a.OwnerUserID, &a.Name, &typ, &a.Currency,
		&vis, &shares, &initial, &current, &reconciledAt, &reconciledBalance,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Type = ledger.AccountType(typ)
	a.Visibility = access.Visibility(vis)
	if err := json.Unmarshal(shares, &a.Shares); err != nil {
		return nil, fmt.Errorf("unmarshal shares for account %s: %w", a.ID, err)
	}
	if a.InitialBalance, err = decimal.NewFromString(initial); err != nil {
		return nil, fmt.Errorf("parse initial balance for account %s: %w", a.ID, err)
	}
	if a.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("parse current balance for account %s: %w", a.ID, err)
	}
	a.LastReconciledAt = reconciledAt
	if reconciledBalance != nil {
		bal, err := decimal.NewFromString(*reconciledBalance)
		if err != nil {
			return nil, fmt.Errorf("parse reconciled balance for account %s: %w", a.ID, err)
		}
		a.LastReconciledBalance = &bal
	}
	return &a, nil
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var (
		t      ledger.Transaction
		typ    string
		amount string
	)
	err := row.Scan(
		&t.ID, &t.FamilyID, &t.CreatedByUserID, &typ, &amount,
		&t.CategoryID, &t.FromAccountID, &t.ToAccountID,
		&t.Description, &t.Date, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Type = ledger.TransactionType(typ)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount for transaction %s: %w", t.ID, err)
	}
	return &t, nil
}
