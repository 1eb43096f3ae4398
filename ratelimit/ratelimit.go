package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/storage"
)

const (
	// DefaultLimitRequests is the attempt cap within one window
	DefaultLimitRequests = 4

	// DefaultLimitPeriod is the sliding window size
	DefaultLimitPeriod = time.Hour
)

// Limiter enforces a sliding-window cap on authentication attempts per
// (purpose, subject) pair. The attempt log lives in storage so the cap
// survives process restarts. The read-modify-write is not atomic across
// processes; concurrent CLI invocations sharing one data directory can
// both observe capacity. That race is accepted.
type Limiter struct {
	requests int
	window   time.Duration
	log      logger.Logger

	// clock is replaceable in tests
	clock func() time.Time
}

// NewLimiter creates a Limiter; requests/window fall back to defaults
// when zero
func NewLimiter(requests int, window time.Duration, log logger.Logger) *Limiter {
	if requests <= 0 {
		requests = DefaultLimitRequests
	}
	if window <= 0 {
		window = DefaultLimitPeriod
	}
	return &Limiter{
		requests: requests,
		window:   window,
		log:      log,
		clock:    time.Now,
	}
}

// SetClock replaces the time source, used by tests
func (l *Limiter) SetClock(clock func() time.Time) {
	l.clock = clock
}

// attemptLog is the persisted form: attempt timestamps in epoch ms
type attemptLog struct {
	Attempts []int64 `json:"attempts"`
}

// Check records an authentication attempt for (purpose, subject) and,
// when enforce is true, fails with *LimitExceededError if the window is
// already at capacity. The attempt is logged either way: disabling
// enforcement never stops counting.
func (l *Limiter) Check(ctx context.Context, store storage.Storage, purpose, subject string, enforce bool) error {
	key := storage.RateLimitKey(purpose, subject)
	now := l.clock()
	cutoff := now.Add(-l.window).UnixMilli()

	var entry attemptLog
	if err := storage.GetJSON(ctx, store, key, &entry); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("rate limit: failed to read attempt log: %w", err)
	}

	// Prune everything older than the window before counting
	recent := entry.Attempts[:0]
	for _, ts := range entry.Attempts {
		if ts > cutoff {
			recent = append(recent, ts)
		}
	}

	if enforce && len(recent) >= l.requests {
		oldest := recent[0]
		retryAfter := time.UnixMilli(oldest).Add(l.window).Sub(now)
		l.log.Warn("authentication attempt rate limit reached",
			logger.String("purpose", purpose),
			logger.String("subject", subject),
			logger.Int("attempts", len(recent)),
			logger.Duration("retry_after", retryAfter))
		return &LimitExceededError{
			Purpose:    purpose,
			Subject:    subject,
			Attempts:   len(recent),
			Limit:      l.requests,
			RetryAfter: retryAfter,
		}
	}

	entry.Attempts = append(recent, now.UnixMilli())
	if err := storage.SetJSON(ctx, store, key, &entry); err != nil {
		return fmt.Errorf("rate limit: failed to persist attempt log: %w", err)
	}

	l.log.Trace("authentication attempt recorded",
		logger.String("purpose", purpose),
		logger.String("subject", subject),
		logger.Int("attempts_in_window", len(entry.Attempts)),
		logger.Bool("enforced", enforce))

	return nil
}
