package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes shared by every connector
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeLookupAmbiguous    = "LOOKUP_AMBIGUOUS"
	CodeNotFound           = "NOT_FOUND"
	CodeBackend            = "BACKEND_ERROR"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Coded is implemented by every typed error in this package.
type Coded interface {
	error
	ErrorCode() string
}

// ValidationError reports malformed or missing input. Keys lists the
// offending request or configuration keys, when known.
type ValidationError struct {
	Message string
	Keys    []string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NewMissingKeysError builds a ValidationError naming each invalid key.
func NewMissingKeysError(keys ...string) *ValidationError {
	return &ValidationError{
		Message: "Invalid or missing configuration: " + strings.Join(keys, ", "),
		Keys:    keys,
	}
}

func (e *ValidationError) Error() string     { return e.Message }
func (e *ValidationError) ErrorCode() string { return CodeValidation }

// AuthenticationError is raised by the request context resolver when the
// caller's identity cannot be established: no token, an unreadable token, or
// a token without an email claim. Every case is a bad request so that no
// backend is contacted on behalf of an unknown user.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string     { return e.Message }
func (e *AuthenticationError) ErrorCode() string { return CodeValidation }

// LookupAmbiguityError is returned when a title lookup that needs exactly one
// match found zero or several.
type LookupAmbiguityError struct {
	Title    string
	Endpoint string
	Matches  int
}

func (e *LookupAmbiguityError) Error() string {
	return fmt.Sprintf("Expected exactly one match for %q at %s, found %d", e.Title, e.Endpoint, e.Matches)
}

func (e *LookupAmbiguityError) ErrorCode() string { return CodeLookupAmbiguous }

// NotFoundError covers missing entities and broken ownership chains.
type NotFoundError struct {
	Message string
}

func NewNotFoundError(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func (e *NotFoundError) Error() string     { return e.Message }
func (e *NotFoundError) ErrorCode() string { return CodeNotFound }

// BackendError carries a non-success status returned by a backend SaaS API.
type BackendError struct {
	Status   int
	Method   string
	Endpoint string
	Body     []byte

	// Masked routes report every status except 401 as a server error.
	Masked bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s %s returned status %d", e.Method, e.Endpoint, e.Status)
}

func (e *BackendError) ErrorCode() string { return CodeBackend }

// MaskBackendStatus returns err with any BackendError in it marked Masked.
func MaskBackendStatus(err error) error {
	var be *BackendError
	if !errors.As(err, &be) {
		return err
	}
	masked := *be
	masked.Masked = true
	return &masked
}

// TransportError wraps a failure to reach the backend at all.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error     { return e.Err }
func (e *TransportError) ErrorCode() string { return CodeBackendUnavailable }

// Common domain errors
var (
	ErrMissingCredential = &ValidationError{Message: "Missing backend credential", Keys: []string{"X-Connector-Authorization"}}
	ErrMissingBaseURL    = &ValidationError{Message: "Missing backend base URL", Keys: []string{"X-Connector-Base-Url"}}
)
