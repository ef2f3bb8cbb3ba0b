package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/example/family-ledger/internal/access"
	"github.com/example/family-ledger/internal/auth"
	"github.com/example/family-ledger/internal/ledger"
	"github.com/example/family-ledger/internal/security"
)

// identity returns the authenticated caller. The Authenticate middleware
// guards every route using it, so a missing identity is a wiring bug and is
// answered with 401 rather than a panic.
func identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return id, true
}

type createAccountRequest struct {
	Name           string           `json:"name"`
	Type           string           `json:"type"`
	Currency       string           `json:"currency"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	Visibility     string           `json:"visibility"`
	Shares         access.ShareList `json:"shares"`
}

func handleCreateAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req createAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		account, err := deps.Ledger.CreateAccount(r.Context(), id.FamilyID, id.UserID, ledger.CreateAccountRequest{
			Name:           req.Name,
			Type:           ledger.AccountType(req.Type),
			Currency:       req.Currency,
			InitialBalance: req.InitialBalance,
			Visibility:     access.Visibility(req.Visibility),
			Shares:         req.Shares,
		})
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, ledger.AccountView{Account: account, Access: access.Owner})
	}
}

func handleListAccounts(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		accounts, err := deps.Ledger.ListAccounts(r.Context(), id.FamilyID, id.UserID)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"accounts": accounts})
	}
}

func handleGetAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		view, err := deps.Ledger.GetAccount(r.Context(), id.FamilyID, id.UserID, chi.URLParam(r, "id"))
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, view)
	}
}

func handleDeleteAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		if err := deps.Ledger.DeleteAccount(r.Context(), id.FamilyID, id.UserID, chi.URLParam(r, "id")); err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true})
	}
}

type reconcileRequest struct {
	ActualBalance decimal.Decimal `json:"actual_balance"`
}

type reconcileResponse struct {
	Adjusted bool            `json:"adjusted"`
	Diff     decimal.Decimal `json:"diff"`
	Message  string          `json:"message,omitempty"`
}

func handleReconcileAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req reconcileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		res, err := deps.Ledger.Reconcile(r.Context(), id.FamilyID, id.UserID, chi.URLParam(r, "id"), req.ActualBalance)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		resp := reconcileResponse{Adjusted: res.Adjusted, Diff: res.Diff}
		if !res.Adjusted {
			resp.Message = "balance matches, no adjustment needed"
		}
		writeJSON(w, r, http.StatusOK, resp)
	}
}

type createTransactionRequest struct {
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	CategoryID    string          `json:"category_id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Description   string          `json:"description"`
	Date          *time.Time      `json:"transaction_date"`
}

func handleCreateTransaction(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req createTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		create := ledger.CreateTransactionRequest{
			Type:          ledger.TransactionType(req.Type),
			Amount:        req.Amount,
			CategoryID:    req.CategoryID,
			FromAccountID: req.FromAccountID,
			ToAccountID:   req.ToAccountID,
			Description:   req.Description,
		}
		if req.Date != nil {
			create.Date = *req.Date
		}

		t, err := deps.Ledger.CreateTransaction(r.Context(), id.FamilyID, id.UserID, create)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, t)
	}
}

func handleListTransactions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		filter := ledger.TransactionFilter{
			AccountID:  q.Get("account_id"),
			CategoryID: q.Get("category_id"),
			Type:       ledger.TransactionType(q.Get("type")),
		}
		if v := q.Get("from"); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				filter.From = &ts
			}
		}
		if v := q.Get("to"); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				filter.To = &ts
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		transactions, err := deps.Ledger.ListTransactions(r.Context(), id.FamilyID, id.UserID, filter)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"transactions": transactions})
	}
}

func handleGetTransaction(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		t, err := deps.Ledger.GetTransaction(r.Context(), id.FamilyID, id.UserID, chi.URLParam(r, "id"))
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, t)
	}
}

type updateTransactionRequest struct {
	Type          *string          `json:"type"`
	Amount        *decimal.Decimal `json:"amount"`
	CategoryID    *string          `json:"category_id"`
	FromAccountID *string          `json:"from_account_id"`
	ToAccountID   *string          `json:"to_account_id"`
	Description   *string          `json:"description"`
	Date          *time.Time       `json:"transaction_date"`
}

func handleUpdateTransaction(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req updateTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		update := ledger.UpdateTransactionRequest{
			Amount:        req.Amount,
			CategoryID:    req.CategoryID,
			FromAccountID: req.FromAccountID,
			ToAccountID:   req.ToAccountID,
			Description:   req.Description,
			Date:          req.Date,
		}
		if req.Type != nil {
			t := ledger.TransactionType(*req.Type)
			update.Type = &t
		}

		t, err := deps.Ledger.UpdateTransaction(r.Context(), id.FamilyID, id.UserID, chi.URLParam(r, "id"), update)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, t)
	}
}

func handleDeleteTransaction(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		if err := deps.Ledger.DeleteTransaction(r.Context(), id.FamilyID, id.UserID, chi.URLParam(r, "id")); err != nil {
			writeLedgerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"success": true})
	}
}
