package security

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error body. AccountID is set on permission
// and lookup failures so the client knows which account was at fault;
// storage failures stay generic.
type ErrorResponse struct {
	Error     string `json:"error"`
	AccountID string `json:"account_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, code string) {
	WriteJSONErrorDetail(w, r, status, code, "")
}

func WriteJSONErrorDetail(w http.ResponseWriter, r *http.Request, status int, code, accountID string) {
	rid := RequestIDFromContext(r.Context())
	if rid != "" {
		w.Header().Set(RequestIDHeader, rid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     code,
		AccountID: accountID,
		RequestID: rid,
	})
}
