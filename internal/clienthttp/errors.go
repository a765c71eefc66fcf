package clienthttp

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError reports a rejected or missing credential. Status is zero when the
// request was refused locally and never sent.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return "auth: " + e.Detail
	}
	return fmt.Sprintf("auth: server returned %d: %s", e.Status, e.Detail)
}

// ErrNotAuthenticated is returned without sending anything when no valid session exists.
var ErrNotAuthenticated = &AuthError{Detail: "not authenticated"}

// NetworkError wraps transport failures: refused connections, timeouts, broken bodies.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is any non-2xx reply that is not an auth rejection.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

// ValidationError is a command refused locally before any request was built.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsAuth reports whether err is an AuthError of any kind.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// Detail returns a short human message for any client error.
func Detail(err error) string {
	var (
		ae *AuthError
		se *ServerError
		ve *ValidationError
		ne *NetworkError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return ae.Detail
	case errors.As(err, &se):
		return se.Detail
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &ne):
		return ne.Err.Error()
	default:
		return err.Error()
	}
}
