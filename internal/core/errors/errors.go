package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpInvalidQueryError    = "invalid_query"
	HttpUnauthenticatedError = "unauthenticated"
	HttpEventRejectedError   = "event_rejected"
	HttpRequestTooLargeError = "request_too_large"
)

// ErrorResponse is the error body of every HTTP endpoint.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
