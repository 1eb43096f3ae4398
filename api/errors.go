package api

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is the sentinel for remote authentication rejections
	ErrAuthentication = errors.New("remote service rejected authentication")

	// ErrTokenExpired is the sentinel for credential-expired signals
	// raised by a service during a normal request
	ErrTokenExpired = errors.New("service credential expired")
)

// TransportError wraps network-level failures (timeouts, resets, DNS).
// These are candidates for transient classification, unlike rejections
// the remote service expressed in a response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response with its body preserved, so the
// service packages can interpret service-specific error payloads
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// AuthenticationError reports that the authority or a service rejected
// an authentication or renewal attempt (bad credential, revoked
// session). Surfaced as-is; retrying is a user action.
type AuthenticationError struct {
	Service string
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication rejected: %s", e.Service, e.Message)
}

func (e *AuthenticationError) Unwrap() error {
	return ErrAuthentication
}

// InterpretStatus maps a *StatusError onto the service error taxonomy:
// statuses listed in expired become *TokenExpiredError, 401 and 403
// become *AuthenticationError, anything else passes through unchanged.
// Each service supplies the statuses its API uses to signal an expired
// credential.
func InterpretStatus(service string, err error, expired ...int) error {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	for _, code := range expired {
		if statusErr.StatusCode == code {
			return &TokenExpiredError{Service: service, Message: string(statusErr.Body)}
		}
	}
	if statusErr.StatusCode == 401 || statusErr.StatusCode == 403 {
		return &AuthenticationError{Service: service, Message: fmt.Sprintf("status %d: %s", statusErr.StatusCode, statusErr.Body)}
	}
	return err
}

// TokenExpiredError is the credential-expired signal a service raises
// mid-use, distinct from network failures and from renewal rejections.
// It triggers expiry-driven renewal; the original request is not
// replayed.
type TokenExpiredError struct {
	Service string
	Message string
}

func (e *TokenExpiredError) Error() string {
	msg := fmt.Sprintf("%s: credential expired", e.Service)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *TokenExpiredError) Unwrap() error {
	return ErrTokenExpired
}
