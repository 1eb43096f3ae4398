package session

import "errors"

// ErrInvalidToken is the sentinel all *InvalidTokenError values unwrap to
var ErrInvalidToken = errors.New("invalid session token")

// InvalidTokenError reports a session token that can never authenticate:
// malformed, wrong issuer/type/audience, or already expired. It is fatal
// to the current call and never retried.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return "invalid session token: " + e.Reason
}

func (e *InvalidTokenError) Unwrap() error {
	return ErrInvalidToken
}
