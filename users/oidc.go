// Package users tracks per-account derived state: the OIDC access
// token and profile obtained from a session token, and a registry of
// live per-user entities shared across commands and monitors.
package users

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/session"
	"github.com/stephnangue/nxauth/storage"
)

const (
	// DefaultProfileInterval is how stale a cached profile may get
	// before GetProfile refreshes it
	DefaultProfileInterval = 60 * time.Minute

	// KindAccountOIDC is the registry kind for per-account OIDC wrappers
	KindAccountOIDC = "account-oidc"

	tokenPath   = "/connect/1.0.0/api/token"
	profilePath = "/2.0.0/users/me"
)

// AccessToken is the OIDC-style access token derived from a session
// token, with its absolute expiry
type AccessToken struct {
	Token     string `json:"access_token"`
	IDToken   string `json:"id_token,omitempty"`
	ExpiresAt int64  `json:"expires_at"` // epoch ms
}

// Profile is the account profile record
type Profile struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Country  string `json:"country"`
	Birthday string `json:"birthday"`
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	SessionToken string `json:"session_token"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccountOIDC wraps one session token's derived access token and
// profile. The two caches expire differently: the token by the expiry
// the authority declared (refreshed whenever expired), the profile by
// time since the last successful fetch. Each is guarded by its own
// single-flight key so concurrent callers share one in-flight refresh.
type AccountOIDC struct {
	token    *session.Token
	caller   api.Caller
	clientID string
	log      logger.Logger

	profileInterval time.Duration
	group           singleflight.Group

	mu               sync.Mutex
	accessToken      *AccessToken
	profile          *Profile
	profileFetchedAt time.Time

	// clock is replaceable in tests
	clock func() time.Time
}

// NewAccountOIDC creates the per-account OIDC wrapper. caller must
// point at the account authority.
func NewAccountOIDC(token *session.Token, caller api.Caller, clientID string, log logger.Logger) *AccountOIDC {
	return &AccountOIDC{
		token:           token,
		caller:          caller,
		clientID:        clientID,
		log:             log,
		profileInterval: DefaultProfileInterval,
		clock:           time.Now,
	}
}

// SetClock replaces the time source, used by tests
func (o *AccountOIDC) SetClock(clock func() time.Time) {
	o.clock = clock
}

var _ Entity = (*AccountOIDC)(nil)

// ExpiresAt reports when the wrapper stops being useful: the expiry of
// the session token everything it derives comes from. A registry keeps
// it alive exactly as long as that token can still authenticate.
func (o *AccountOIDC) ExpiresAt() time.Time {
	return o.token.ExpiresAt
}

// AccountOIDCFactory builds the registry factory for stored accounts.
// The factory loads the account record for an id, parses its session
// token and wraps it, so every caller resolving that user shares one
// wrapper and its caches.
func AccountOIDCFactory(store storage.Storage, caller api.Caller, clientID string, log logger.Logger) Factory {
	return func(ctx context.Context, id string) (Entity, error) {
		account, err := LoadAccount(ctx, store, id)
		if err != nil {
			return nil, err
		}
		token, err := session.Parse(account.SessionToken)
		if err != nil {
			return nil, fmt.Errorf("stored session token for %s is unusable: %w", id, err)
		}
		return NewAccountOIDC(token, caller, clientID, log), nil
	}
}

// SetProfileInterval overrides the profile refresh cadence
func (o *AccountOIDC) SetProfileInterval(d time.Duration) {
	if d > 0 {
		o.profileInterval = d
	}
}

// GetToken returns the cached access token while it is unexpired, else
// refreshes it. TTL zero semantics: any expired token is refreshed on
// the next call, there is no grace period.
func (o *AccountOIDC) GetToken(ctx context.Context) (*AccessToken, error) {
	o.mu.Lock()
	cached := o.accessToken
	o.mu.Unlock()
	if cached != nil && cached.ExpiresAt > o.clock().UnixMilli() {
		return cached, nil
	}

	v, err, _ := o.group.Do("token", func() (interface{}, error) {
		o.mu.Lock()
		cached := o.accessToken
		o.mu.Unlock()
		if cached != nil && cached.ExpiresAt > o.clock().UnixMilli() {
			return cached, nil
		}

		req := tokenRequest{
			ClientID:     o.clientID,
			SessionToken: o.token.Raw,
			GrantType:    "urn:ietf:params:oauth:grant-type:jwt-bearer-session-token",
		}
		var resp tokenResponse
		if err := o.caller.DoJSON(ctx, http.MethodPost, tokenPath, &req, &resp); err != nil {
			return nil, api.InterpretStatus("oidc", err)
		}
		if resp.AccessToken == "" {
			return nil, &api.AuthenticationError{Service: "oidc", Message: "response contained no access token"}
		}

		fresh := &AccessToken{
			Token:     resp.AccessToken,
			IDToken:   resp.IDToken,
			ExpiresAt: o.clock().UnixMilli() + resp.ExpiresIn*1000,
		}
		o.mu.Lock()
		o.accessToken = fresh
		o.mu.Unlock()

		o.log.Trace("account access token refreshed",
			logger.String("user_id", o.token.Subject),
			logger.Time("expires_at", time.UnixMilli(fresh.ExpiresAt)))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AccessToken), nil
}

// GetProfile returns the cached profile, refreshing it when the update
// interval has elapsed since the last successful fetch. This is a soft
// cache: staleness is measured from our side, not from any
// server-declared expiry.
func (o *AccountOIDC) GetProfile(ctx context.Context) (*Profile, error) {
	o.mu.Lock()
	cached := o.profile
	fetchedAt := o.profileFetchedAt
	o.mu.Unlock()
	if cached != nil && o.clock().Sub(fetchedAt) < o.profileInterval {
		return cached, nil
	}

	v, err, _ := o.group.Do("user", func() (interface{}, error) {
		o.mu.Lock()
		cached := o.profile
		fetchedAt := o.profileFetchedAt
		o.mu.Unlock()
		if cached != nil && o.clock().Sub(fetchedAt) < o.profileInterval {
			return cached, nil
		}

		accessToken, err := o.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token for profile fetch: %w", err)
		}

		var profile Profile
		path := profilePath + "?access_token=" + accessToken.Token
		if err := o.caller.DoJSON(ctx, http.MethodGet, path, nil, &profile); err != nil {
			return nil, api.InterpretStatus("oidc", err)
		}

		o.mu.Lock()
		o.profile = &profile
		o.profileFetchedAt = o.clock()
		o.mu.Unlock()

		return &profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}
