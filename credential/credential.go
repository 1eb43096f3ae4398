package credential

import (
	"encoding/json"
	"time"
)

// Set is the result of a successful authentication against a service:
// the service-specific payload plus the metadata needed to decide when
// it must be renewed. The persistent store owns these; in-memory copies
// are transient.
type Set struct {
	// Service is the name of the service that issued the payload
	Service string `json:"service"`

	// UserID is the subject the credentials belong to
	UserID string `json:"user_id"`

	// Payload is the service-specific credential body (profile, access
	// token, refresh metadata). Opaque to the manager.
	Payload json.RawMessage `json:"payload"`

	// ExpiresAt is the absolute wall-clock expiry in epoch milliseconds
	ExpiresAt int64 `json:"expires_at"`

	// ProxyURL identifies the gateway that issued the set, when one was
	// used. Part of the cache key so direct and proxied sets never mix.
	ProxyURL string `json:"proxy_url,omitempty"`
}

// Valid reports whether the set is still usable at the given time
func (s *Set) Valid(now time.Time) bool {
	return s != nil && s.ExpiresAt > now.UnixMilli()
}

// Kind distinguishes how a Result was obtained
type Kind int

const (
	// KindCached means the set was served from cache without a network call
	KindCached Kind = iota

	// KindFresh means the call (or an in-flight call it joined) performed
	// an authentication against the remote service
	KindFresh
)

func (k Kind) String() string {
	if k == KindFresh {
		return "fresh"
	}
	return "cached"
}

// Result carries a Set together with how it was obtained. The tag is
// ordinary data on the result, per call; nothing is attached to the
// persisted set itself.
type Result struct {
	Kind Kind
	Set  *Set
}

// Issued is what a service's authenticate/renew operation returns: the
// payload and its declared lifetime in seconds
type Issued struct {
	Payload   json.RawMessage
	ExpiresIn int64
	UserID    string
}
