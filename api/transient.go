package api

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// isTransientStatus reports whether an HTTP status is worth retrying:
// overload and gateway statuses, including Cloudflare's 52x range
func isTransientStatus(status int) bool {
	switch status {
	case 429, 502, 503, 504:
		return true
	}
	return status >= 520 && status <= 527
}

// IsTransient classifies an error as a temporary network or gateway
// condition. Transient errors keep a polling loop alive at its normal
// interval; anything else is treated as fatal by default.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is the caller's decision, never a retry signal
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isTransientStatus(statusErr.StatusCode)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}

	return false
}
