package smartapi

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is returned when the upstream rejects the session
	// tokens. The caller should re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrMalformedResponse is returned when a response lacks required fields.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// Error codes SmartAPI uses for invalid, expired or missing tokens.
var expiredCodes = map[string]struct{}{
	"AG8001": {},
	"AG8002": {},
	"AG8003": {},
	"AB1010": {},
}

// APIError is an error reported by SmartAPI in a response envelope with
// status false.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown"
	}
	if e.Code == "" {
		return fmt.Sprintf("smartapi: %s", msg)
	}
	return fmt.Sprintf("smartapi: %s (%s)", msg, e.Code)
}

// Expired reports whether the error means the session tokens are no longer
// accepted.
func (e *APIError) Expired() bool {
	_, ok := expiredCodes[e.Code]
	return ok
}

// Is lets errors.Is(err, ErrSessionExpired) match expired-token API errors.
func (e *APIError) Is(target error) bool {
	return target == ErrSessionExpired && e.Expired()
}

// Reason returns the upstream-reported reason, or "unknown".
func (e *APIError) Reason() string {
	if e.Message == "" {
		return "unknown"
	}
	return e.Message
}
