package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/family-ledger/internal/auth"
	"github.com/example/family-ledger/internal/ledger"
	"github.com/example/family-ledger/internal/security"
)

const defaultMaxBodyBytes = 1 << 20

// Dependencies carries everything the router needs. RateLimiter is optional;
// when nil the limiting middleware is skipped entirely.
type Dependencies struct {
	Logger       *slog.Logger
	Verifier     *auth.Verifier
	Ledger       *ledger.Service
	RateLimiter  *security.RedisRateLimiter
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, fmt.Errorf("api: token verifier is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("api: ledger service is required")
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}

	createAccount, err := security.NewJSONSchemaValidator(createAccountSchema)
	if err != nil {
		return nil, fmt.Errorf("compile create account schema: %w", err)
	}
	createTransaction, err := security.NewJSONSchemaValidator(createTransactionSchema)
	if err != nil {
		return nil, fmt.Errorf("compile create transaction schema: %w", err)
	}
	updateTransaction, err := security.NewJSONSchemaValidator(updateTransactionSchema)
	if err != nil {
		return nil, fmt.Errorf("compile update transaction schema: %w", err)
	}
	reconcile, err := security.NewJSONSchemaValidator(reconcileSchema)
	if err != nil {
		return nil, fmt.Errorf("compile reconcile schema: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.RequestID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimit(deps.RateLimiter, clientIP))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	authenticate := auth.Authenticate(deps.Verifier, security.WriteJSONError)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", handleListAccounts(deps))
			r.With(createAccount.Middleware).Post("/", handleCreateAccount(deps))
			r.Get("/{id}", handleGetAccount(deps))
			r.Delete("/{id}", handleDeleteAccount(deps))
			r.With(reconcile.Middleware).Post("/{id}/reconcile", handleReconcileAccount(deps))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", handleListTransactions(deps))
			r.With(createTransaction.Middleware).Post("/", handleCreateTransaction(deps))
			r.Get("/{id}", handleGetTransaction(deps))
			r.With(updateTransaction.Middleware).Put("/{id}", handleUpdateTransaction(deps))
			r.Delete("/{id}", handleDeleteTransaction(deps))
		})
	})

	return r, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
