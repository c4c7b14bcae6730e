package web

import "net/http"

// HTTPError is returned by handlers for failures with a known status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func NewHTTPError(statusCode int, message string) HTTPError {
	return HTTPError{StatusCode: statusCode, Message: message}
}

func (e HTTPError) Error() string {
	return e.Message
}

var (
	ErrNotAuthenticated = NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	ErrInvalidBody      = NewHTTPError(http.StatusBadRequest, "invalid request body")
)

type Res struct {
	Success bool `json:"success"`
	Error   any  `json:"error,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
