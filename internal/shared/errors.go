package shared

import "fmt"

// ErrorKind classifies a domain error for the HTTP boundary.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindAccessDenied
	KindNotFound
	KindConflict
)

// Error is a domain error carrying a machine-readable code. Services return
// these; the httpx boundary maps them to status codes and redacted bodies.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches errors sharing the same kind and code, so copies produced by
// WithCause and WithFields still compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewError constructs a domain error.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WithCause returns a copy of e carrying the underlying error.
func (e *Error) WithCause(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// WithFields returns a copy of e carrying field-level validation messages.
func (e *Error) WithFields(fields map[string]string) *Error {
	clone := *e
	clone.Fields = fields
	return &clone
}

// Shared sentinel errors. Authentication failures are deliberately uniform so
// responses do not reveal which credential or token check failed.
var (
	ErrInvalidCredentials = NewError(KindAuthentication, "LOGIN_FAILED", "invalid username or password")
	ErrAuthRequired       = NewError(KindAuthentication, "AUTHENTICATION_REQUIRED", "authentication required")
	ErrInvalidToken       = NewError(KindAuthentication, "INVALID_TOKEN", "invalid or expired token")
	ErrAccessDenied       = NewError(KindAccessDenied, "ACCESS_DENIED", "access denied")
	ErrInternal           = NewError(KindInternal, "INTERNAL_SERVER_ERROR", "internal server error")
)
