package dto

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Message string `json:"message"`
}

// NewErrorResponse creates an error response
func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Message: message}
}

// DeleteFailure is returned by delete-style routes when the backend refused
// the delete.
type DeleteFailure struct {
	Result DeleteFailureResult `json:"result"`
}

type DeleteFailureResult struct {
	Message string `json:"message"`
}

func NewDeleteFailure(message string) DeleteFailure {
	return DeleteFailure{Result: DeleteFailureResult{Message: message}}
}

// HealthResponse reports liveness and build information.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ConnectorInfo describes one mounted connector.
type ConnectorInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Metadata any    `json:"metadata"`
}

// DiscoveryResponse lists the connectors this service mounts.
type DiscoveryResponse struct {
	Connectors []ConnectorInfo `json:"connectors"`
}
