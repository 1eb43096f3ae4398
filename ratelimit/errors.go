package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrLimitExceeded is the sentinel all *LimitExceededError values unwrap to
var ErrLimitExceeded = errors.New("authentication attempt rate limit exceeded")

// LimitExceededError reports that the sliding-window attempt cap was
// reached. Fatal to the current call; the caller must wait or pass an
// explicit override. Never auto-retried.
type LimitExceededError struct {
	Purpose    string
	Subject    string
	Attempts   int
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (user %s): %d attempts, limit %d, retry in %s",
		e.Purpose, e.Subject, e.Attempts, e.Limit, e.RetryAfter.Round(time.Second))
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}
