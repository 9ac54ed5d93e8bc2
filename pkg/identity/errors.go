package identity

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the identity service rejects the
	// presented credentials or token (HTTP 401)
	ErrUnauthorized = errors.New("identity: unauthorized")
	// ErrForbidden is returned for HTTP 403
	ErrForbidden = errors.New("identity: forbidden")
	// ErrNotFound is returned for HTTP 404
	ErrNotFound = errors.New("identity: not found")
	// ErrAuthorizationFailure is returned when no usable authentication
	// response could be obtained (transport failure, missing subject token)
	ErrAuthorizationFailure = errors.New("identity: authorization failure")
	// ErrMalformedResponse is returned when a response body lacks the
	// fields every token response must carry
	ErrMalformedResponse = errors.New("identity: malformed response")
)

// ClientError is any failed identity-service call. errors.Is matches the
// sentinel for its status code.
type ClientError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("identity %s failed: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("identity %s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err came from an identity-service call
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsCredentialError reports whether err means the user supplied bad
// credentials rather than the service being unavailable.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound)
}

func statusError(operation string, status int, message string) *ClientError {
	ce := &ClientError{Operation: operation, StatusCode: status, Message: message}
	switch status {
	case http.StatusUnauthorized:
		ce.Err = ErrUnauthorized
	case http.StatusForbidden:
		ce.Err = ErrForbidden
	case http.StatusNotFound:
		ce.Err = ErrNotFound
	}
	return ce
}
