package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Fallback messages shown when the backend gives no usable reason.
const (
	MsgSessionExpired = "Your session has expired. Please log in again."
	MsgBadCredentials = "Incorrect username or password"
	MsgRequestFailed  = "Request failed"
	MsgTransport      = "Network error. Please check your connection."
	MsgUnexpected     = "Unexpected error"
)

// AuthError reports rejected credentials (Expired=false) or a session the
// backend no longer accepts (Expired=true).
type AuthError struct {
	Reason  string
	Expired bool
}

func (e *AuthError) Error() string {
	if e.Expired {
		return "session expired"
	}
	if e.Reason == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Reason
}

// Is matches ErrUnauthorized.
func (e *AuthError) Is(target error) bool { return target == ErrUnauthorized }

// ValidationError is raised before the network layer is reached.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RequestError is a non-success HTTP status with the backend's reason, if any.
type RequestError struct {
	Status int
	Reason string
}

func (e *RequestError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = MsgRequestFailed
	}
	return fmt.Sprintf("%s (HTTP %d)", reason, e.Status)
}

// Is matches ErrRequest, and ErrNotFound for 404 responses.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrRequest:
		return true
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// TransportError wraps network-level failures (dial, TLS, timeout).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

// Unwrap exposes the underlying network error.
func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Invalid is a shorthand for a field-scoped ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UserMessage converts any error produced by the client into one line fit for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ae *AuthError
		ve *ValidationError
		re *RequestError
	)
	switch {
	case errors.As(err, &ae):
		if ae.Expired {
			return MsgSessionExpired
		}
		if ae.Reason != "" {
			return ae.Reason
		}
		return MsgBadCredentials
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &re):
		if re.Reason != "" {
			return re.Reason
		}
		return MsgRequestFailed
	case errors.Is(err, ErrTransport):
		return MsgTransport
	case errors.Is(err, ErrRateLimited):
		return "Too many failed attempts. Try again later."
	}
	return MsgUnexpected
}
