package errors

const (
	HttpInternalError     = "internal_error"
	HttpInvalidJsonError  = "invalid_json"
	HttpInvalidPayload    = "invalid_payload"
	HttpUnauthorizedError = "unauthorized"
	HttpEnqueueError      = "enqueue_failed"
)

// ErrorResponse is the error response body for ingestion and webhook errors.
// Internal failure detail is never echoed beyond the coarse message.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
