package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can map it to a status
// code without inspecting message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalid
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindStorage:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Error carries the failure kind plus enough detail to name the account or
// transaction that caused it. Storage failures keep the cause wrapped but
// expose only a generic message.
type Error struct {
	Kind          Kind
	AccountID     string
	TransactionID string
	Message       string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.AccountID != "":
		return fmt.Sprintf("%s: account %s", msg, e.AccountID)
	case e.TransactionID != "":
		return fmt.Sprintf("%s: transaction %s", msg, e.TransactionID)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from any error in the chain.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// Detail returns the ledger error in the chain, if any.
func Detail(err error) (*Error, bool) {
	var le *Error
	ok := errors.As(err, &le)
	return le, ok
}

func errUnauthenticated() error {
	return &Error{Kind: KindUnauthenticated, Message: "caller identity required"}
}

func errForbiddenAccount(accountID string) error {
	return &Error{Kind: KindForbidden, AccountID: accountID, Message: "write access denied"}
}

func errAccountNotFound(accountID string) error {
	return &Error{Kind: KindNotFound, AccountID: accountID, Message: "account not found"}
}

func errTransactionNotFound(transactionID string) error {
	return &Error{Kind: KindNotFound, TransactionID: transactionID, Message: "transaction not found"}
}

func invalidf(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// wrapStorage classifies an error coming back from the atomic unit. Errors
// the unit itself produced (permission, validation, not-found) pass through;
// anything else is a commit/connectivity failure and must surface as such,
// never be retried or guessed-and-reapplied here.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: KindStorage, Message: "storage transaction failed", Err: err}
}
