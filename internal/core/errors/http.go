package errors

const (
	HttpInternalError    = "internal_error"
	HttpRunInProgress    = "run_in_progress"
	HttpRunFailed        = "run_failed"
	HttpReportNotFound   = "report_not_found"
	HttpStoreUnreachable = "store_unreachable"
)

// ErrorResponse is the error response body for the ops API.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
