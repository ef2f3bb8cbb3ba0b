package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/family-ledger/internal/ledger"
	"github.com/example/family-ledger/internal/security"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	rid := security.RequestIDFromContext(r.Context())
	if rid != "" {
		w.Header().Set(security.RequestIDHeader, rid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeLedgerError maps the core error taxonomy onto HTTP statuses:
// Unauthenticated 401, Forbidden 403, NotFound 404, Invalid 400, storage and
// anything unclassified 500. Permission and lookup errors name the failing
// account; storage failures stay generic.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
	)
	switch ledger.KindOf(err) {
	case ledger.KindUnauthenticated:
		status, code = http.StatusUnauthorized, "unauthorized"
	case ledger.KindForbidden:
		status, code = http.StatusForbidden, "forbidden"
	case ledger.KindNotFound:
		status, code = http.StatusNotFound, "not_found"
	case ledger.KindInvalid:
		status, code = http.StatusBadRequest, "invalid_request"
	case ledger.KindStorage:
		status, code = http.StatusInternalServerError, "storage_failure"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}

	accountID := ""
	if detail, ok := ledger.Detail(err); ok && status != http.StatusInternalServerError {
		accountID = detail.AccountID
	}
	security.WriteJSONErrorDetail(w, r, status, code, accountID)
}
