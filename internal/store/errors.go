package store

import (
	"errors"
	"fmt"
)

// Stable database error codes surfaced to API callers.
const (
	CodeTimeout          = "DB_TIMEOUT"
	CodeConnectionFailed = "DB_CONNECTION_FAILED"
	CodeUnavailable      = "DB_UNAVAILABLE"
	CodeWriteFailed      = "DB_WRITE_FAILED"
	CodeReadFailed       = "DB_READ_FAILED"
)

// ErrNotFound is returned when a scan id does not correspond to a stored
// record. A malformed id is treated the same way.
var ErrNotFound = errors.New("store: scan not found")

// DatabaseError carries a stable code alongside the operator-facing
// message. The underlying driver error is wrapped for logs, never for
// HTTP responses.
type DatabaseError struct {
	Code    string
	Message string
	Err     error
}

func (e *DatabaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func newDatabaseError(code, message string, err error) *DatabaseError {
	return &DatabaseError{Code: code, Message: message, Err: err}
}
