package onepanel

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

// Callers tell failures apart with errors.Is on the sentinels below and
// errors.As on *APIError.
var (
	// ErrTransport is returned when the host cannot be reached or the
	// connection fails mid-request.
	ErrTransport = errors.New("remote host unreachable")

	// ErrUnauthorized is returned when the host answers HTTP 401.
	ErrUnauthorized = errors.New("remote host rejected credential")

	// ErrMalformedEnvelope is returned when a response body is not a JSON envelope.
	ErrMalformedEnvelope = errors.New("malformed response envelope")

	// ErrHTTPStatus is returned for non-2xx responses that carry no envelope.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrUnexpectedPayload is returned when data has the wrong shape for the operation.
	ErrUnexpectedPayload = errors.New("unexpected response payload")

	// ErrInvalidOperation is returned for container or stack operations the panel does not know.
	ErrInvalidOperation = errors.New("invalid operation")
)

// APIError is an application-level failure: the host answered with an
// envelope whose code is not 200.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error %d: %s", e.Code, e.Message)
}

// RequestError wraps errors with the request that produced them.
type RequestError struct {
	Op      string // Client method, e.g. "UploadFile"
	Method  string
	Path    string
	Status  int // HTTP status, 0 when no response was received
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s %s (HTTP %d): %s", e.Op, e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s %s: %s", e.Op, e.Method, e.Path, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a new RequestError.
func NewRequestError(op, method, path string, status int, message string, err error) *RequestError {
	return &RequestError{
		Op:      op,
		Method:  method,
		Path:    path,
		Status:  status,
		Message: message,
		Err:     err,
	}
}
