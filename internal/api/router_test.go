package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/family-ledger/internal/auth"
	"github.com/example/family-ledger/internal/ledger"
	"github.com/example/family-ledger/internal/security"
	"github.com/example/family-ledger/internal/storage/memory"
)

type apiFixture struct {
	t        *testing.T
	handler  http.Handler
	verifier *auth.Verifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := &auth.Verifier{Secret: []byte("test-secret"), Issuer: "family-ledger"}

	handler, err := NewRouter(Dependencies{
		Logger:   logger,
		Verifier: verifier,
		Ledger:   ledger.NewService(store, logger),
	})
	require.NoError(t, err)

	return &apiFixture{t: t, handler: handler, verifier: verifier}
}

func (f *apiFixture) token(familyID, userID string) string {
	f.t.Helper()
	token, err := f.verifier.Sign(auth.Identity{FamilyID: familyID, UserID: userID}, time.Minute)
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type accountBody struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Access         string          `json:"access"`
}

type transactionBody struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	FromAccountID string          `json:"from_account_id"`
}

func (f *apiFixture) createAccount(token string, body map[string]any) accountBody {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/v1/accounts", token, body)
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[accountBody](f.t, rec)
}

func TestHealthzNeedsNoToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestsWithoutTokenAre401(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/v1/transactions", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountAndTransactionFlow(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token("fam", "alice")

	account := f.createAccount(token, map[string]any{
		"name":            "Checking",
		"type":            "BANK",
		"initial_balance": "1000",
	})
	require.NotEmpty(t, account.ID)
	assert.Equal(t, "OWNER", account.Access)

	rec := f.do(http.MethodPost, "/v1/transactions", token, map[string]any{
		"type":            "EXPENSE",
		"amount":          "200",
		"from_account_id": account.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON[transactionBody](t, rec)

	rec = f.do(http.MethodGet, "/v1/accounts/"+account.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[accountBody](t, rec)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(800)))

	rec = f.do(http.MethodPut, "/v1/transactions/"+created.ID, token, map[string]any{"amount": "300"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/v1/accounts/"+account.ID, token, nil)
	got = decodeJSON[accountBody](t, rec)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(700)))

	rec = f.do(http.MethodDelete, "/v1/transactions/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/accounts/"+account.ID, token, nil)
	got = decodeJSON[accountBody](t, rec)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(1000)))

	rec = f.do(http.MethodGet, "/v1/transactions/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForbiddenNamesTheAccount(t *testing.T) {
	f := newAPIFixture(t)
	aliceToken := f.token("fam", "alice")
	bobToken := f.token("fam", "bob")

	private := f.createAccount(aliceToken, map[string]any{
		"name":            "Alice Private",
		"type":            "BANK",
		"initial_balance": "500",
		"visibility":      "PRIVATE",
	})

	rec := f.do(http.MethodPost, "/v1/transactions", bobToken, map[string]any{
		"type":            "EXPENSE",
		"amount":          "10",
		"from_account_id": private.ID,
	})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	errBody := decodeJSON[security.ErrorResponse](t, rec)
	assert.Equal(t, "forbidden", errBody.Error)
	assert.Equal(t, private.ID, errBody.AccountID)

	// Bob cannot even see the account.
	rec = f.do(http.MethodGet, "/v1/accounts/"+private.ID, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchemaValidationRejectsBadBodies(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token("fam", "alice")

	cases := []map[string]any{
		{"type": "EXPENSE", "amount": "10"},                                // missing from_account_id
		{"type": "REFUND", "amount": "10", "from_account_id": "a"},         // unknown type
		{"type": "EXPENSE", "amount": -10, "from_account_id": "a"},         // negative amount
		{"type": "EXPENSE", "amount": "ten", "from_account_id": "a"},       // non-numeric amount
		{"type": "EXPENSE", "amount": "10", "from_account_id": ""},         // empty account id
		{"type": "EXPENSE", "amount": "10", "from": "a", "bogus": "field"}, // unknown fields
	}
	for _, body := range cases {
		rec := f.do(http.MethodPost, "/v1/transactions", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestTransferRejectsSameAccount(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token("fam", "alice")

	account := f.createAccount(token, map[string]any{
		"name": "Checking", "type": "BANK", "initial_balance": "100",
	})

	rec := f.do(http.MethodPost, "/v1/transactions", token, map[string]any{
		"type":            "TRANSFER",
		"amount":          "10",
		"from_account_id": account.ID,
		"to_account_id":   account.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token("fam", "alice")

	account := f.createAccount(token, map[string]any{
		"name": "Cash", "type": "CASH", "initial_balance": "1000",
	})

	rec := f.do(http.MethodPost, "/v1/accounts/"+account.ID+"/reconcile", token, map[string]any{
		"actual_balance": "950",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeJSON[reconcileResponse](t, rec)
	assert.True(t, res.Adjusted)
	assert.True(t, res.Diff.Equal(decimal.NewFromInt(-50)))

	rec = f.do(http.MethodGet, "/v1/accounts/"+account.ID, token, nil)
	got := decodeJSON[accountBody](t, rec)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(950)))

	// Second reconcile at the same balance records metadata only.
	rec = f.do(http.MethodPost, "/v1/accounts/"+account.ID+"/reconcile", token, map[string]any{
		"actual_balance": "950",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeJSON[reconcileResponse](t, rec)
	assert.False(t, res.Adjusted)
	assert.NotEmpty(t, res.Message)
}

func TestListTransactionsWithFilters(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token("fam", "alice")

	a := f.createAccount(token, map[string]any{"name": "A", "type": "BANK", "initial_balance": "100"})
	b := f.createAccount(token, map[string]any{"name": "B", "type": "BANK", "initial_balance": "100"})

	for _, body := range []map[string]any{
		{"type": "EXPENSE", "amount": "10", "from_account_id": a.ID, "category_id": "food"},
		{"type": "EXPENSE", "amount": "20", "from_account_id": b.ID, "category_id": "rent"},
	} {
		rec := f.do(http.MethodPost, "/v1/transactions", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(http.MethodGet, "/v1/transactions?account_id="+a.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[map[string][]transactionBody](t, rec)
	require.Len(t, list["transactions"], 1)
	assert.Equal(t, a.ID, list["transactions"][0].FromAccountID)

	rec = f.do(http.MethodGet, "/v1/transactions?type=INCOME", token, nil)
	list = decodeJSON[map[string][]transactionBody](t, rec)
	assert.Empty(t, list["transactions"])
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPatch, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestResponsesCarryRequestID(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(security.RequestIDHeader, "rid-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "rid-123", rec.Header().Get(security.RequestIDHeader))
}
