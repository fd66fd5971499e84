package dto

import (
	"net/http"

	"github.com/cardhub/connectors/internal/domain/shared"
)

// Error codes produced by the HTTP layer itself. Domain codes come from the
// shared package.
const (
	// ErrCodeTimeout is used when the request deadline passed before the
	// backend call graph finished
	ErrCodeTimeout = "TIMEOUT"
	// ErrCodeInvalidConnectorToken is used when a backend rejected the
	// caller's connector credential
	ErrCodeInvalidConnectorToken = "INVALID_CONNECTOR_TOKEN"
	// ErrCodeBadRequest is used for malformed requests that never reached
	// the service layer
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeRateLimited is used when the inbound limiter rejects a request
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeBodyTooLarge is used when a request body exceeds the limit
	ErrCodeBodyTooLarge = "BODY_TOO_LARGE"
)

// InvalidConnectorTokenMessage is the body message for a rejected connector
// credential.
const InvalidConnectorTokenMessage = "invalid_connector_token"

// HeaderBackendStatus carries the backend's own status whenever an error
// response was caused by a backend reply.
const HeaderBackendStatus = "X-Backend-Status"

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeValidation:         http.StatusBadRequest,
	shared.CodeLookupAmbiguous:    http.StatusBadRequest,
	shared.CodeNotFound:           http.StatusNotFound,
	shared.CodeBackend:            http.StatusInternalServerError,
	shared.CodeBackendUnavailable: http.StatusBadGateway,
	shared.CodeInternal:           http.StatusInternalServerError,

	ErrCodeTimeout:               http.StatusGatewayTimeout,
	ErrCodeInvalidConnectorToken: http.StatusBadRequest,
	ErrCodeBadRequest:            http.StatusBadRequest,
	ErrCodeRateLimited:           http.StatusTooManyRequests,
	ErrCodeBodyTooLarge:          http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// BackendStatus decides the status reported for a backend rejection. A
// rejected connector credential is the caller's fault; server errors and
// masked routes report 500; other client errors pass through.
func BackendStatus(be *shared.BackendError) (int, string) {
	switch {
	case be.Status == http.StatusUnauthorized:
		return http.StatusBadRequest, ErrCodeInvalidConnectorToken
	case be.Masked, be.Status >= http.StatusInternalServerError, be.Status < http.StatusBadRequest:
		return http.StatusInternalServerError, shared.CodeBackend
	default:
		return be.Status, shared.CodeBackend
	}
}
