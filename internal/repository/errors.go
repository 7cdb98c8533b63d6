package repository

import "errors"

// Error is the domain error taxonomy every repository method returns.
// Callers (the service layer) type-switch or errors.Is against these, never
// against a storage-specific error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Kind classifies a repository error for HTTP/close-code mapping further up
// the stack (internal/api, internal/gateway).
type Kind int

const (
	KindNotFound Kind = iota
	KindConflict
	KindValidation
	KindInfra
)

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error.
func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict builds a KindConflict error (unique violation, already-member,
// already-has-role).
func Conflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

// Validation builds a KindValidation error.
func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// Infra wraps an opaque storage/broker failure. The wrapped error is never
// surfaced to API/gateway clients; only Message (kept generic) is.
func Infra(message string, err error) error {
	return &Error{Kind: KindInfra, Message: message, Err: err}
}

// Is reports whether err carries the given Kind, unwrapping through
// fmt.Errorf("...: %w", ...) chains.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
