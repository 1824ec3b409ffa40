package errors

import "net/http"

const (
	CodeSessionNotFound        = "session_not_found"
	CodeActivityNotFound       = "activity_not_found"
	CodeInvalidTransition      = "invalid_state_transition"
	CodeValidation             = "validation_error"
	CodeConcurrentModification = "concurrent_modification"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, "internal_error", message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

// Validation reports an out-of-range or malformed input field.
func Validation(field, message string) *APIError {
	err := New(http.StatusBadRequest, CodeValidation, message)
	if field != "" {
		err.Details = map[string]interface{}{"field": field}
	}
	return err
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	err := New(http.StatusConflict, code, message)
	err.Details = details
	return err
}

// InvalidTransition carries the domain message verbatim, including the session status.
func InvalidTransition(message string) *APIError {
	return New(http.StatusConflict, CodeInvalidTransition, message)
}
