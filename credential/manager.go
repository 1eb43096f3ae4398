package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/ratelimit"
	"github.com/stephnangue/nxauth/session"
	"github.com/stephnangue/nxauth/storage"
)

// DefaultAuthTimeout is the default timeout for one authentication or
// renewal flow
const DefaultAuthTimeout = 30 * time.Second

// GetTokenOptions controls one GetToken call
type GetTokenOptions struct {
	// ProxyURL routes the authentication through an API gateway when set
	ProxyURL string

	// RateLimit enforces the attempt cap. When false the attempt is
	// still counted, it just never blocks.
	RateLimit bool
}

// Manager resolves session tokens to short-lived service credential
// sets. Reads go through an in-memory hot cache in front of the
// persistent store; misses collapse into a single authentication per
// cache key. The guarantee is process-local: two CLI processes sharing
// one data directory can still both authenticate on a concurrent miss.
type Manager struct {
	log     logger.Logger
	store   storage.Storage
	limiter *ratelimit.Limiter
	cache   *ristretto.Cache[string, *Set]
	group   singleflight.Group

	clientConfig *api.Config
	authTimeout  time.Duration

	// clock is replaceable in tests
	clock func() time.Time
}

// NewManager creates a credential manager backed by the given store
func NewManager(store storage.Storage, limiter *ratelimit.Limiter, clientConfig *api.Config, log logger.Logger) (*Manager, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Set]{
		NumCounters: 10_000,
		MaxCost:     1 << 20, // 1 MB of sets is plenty for a CLI
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	if clientConfig == nil {
		clientConfig = api.DefaultConfig()
	}

	return &Manager{
		log:          log,
		store:        store,
		limiter:      limiter,
		cache:        cache,
		clientConfig: clientConfig,
		authTimeout:  DefaultAuthTimeout,
		clock:        time.Now,
	}, nil
}

// SetClock replaces the time source, used by tests
func (m *Manager) SetClock(clock func() time.Time) {
	m.clock = clock
}

// SetAuthTimeout bounds one authentication flow. Values <= 0 restore
// the default.
func (m *Manager) SetAuthTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	m.authTimeout = timeout
}

// cacheKey scopes a set by service, raw token and, when present, the
// issuing gateway, so a proxied set is never served to a direct caller
func cacheKey(svc Service, token *session.Token, proxyURL string) string {
	key := storage.TokenKey(svc.Name(), token.Raw)
	if proxyURL != "" {
		key = key + "|proxy=" + proxyURL
	}
	return key
}

// GetToken returns the credential set for (service, session token).
//
// The token's claims are validated first; a token that can never
// authenticate fails before any storage or network access. A cached
// unexpired set is returned as-is. Otherwise the attempt is counted
// against the rate limit, one authentication runs (concurrent callers
// for the same key share it), and the fresh set is persisted before it
// is returned.
func (m *Manager) GetToken(ctx context.Context, svc Service, token *session.Token, opts GetTokenOptions) (*Result, error) {
	now := m.clock()
	if err := token.Validate(Expectation(svc), now); err != nil {
		return nil, err
	}

	key := cacheKey(svc, token, opts.ProxyURL)

	if set, found := m.cache.Get(key); found && set.Valid(now) {
		if err := m.persistSubjectIndex(ctx, svc, set.UserID, token.Raw); err != nil {
			return nil, err
		}
		return &Result{Kind: KindCached, Set: set}, nil
	}

	if set, err := m.loadSet(ctx, key); err != nil {
		return nil, err
	} else if set.Valid(now) {
		m.cache.Set(key, set, 1)
		if err := m.persistSubjectIndex(ctx, svc, set.UserID, token.Raw); err != nil {
			return nil, err
		}
		return &Result{Kind: KindCached, Set: set}, nil
	}

	// Miss or expired: collapse concurrent callers into one
	// authentication per key
	v, err, shared := m.group.Do(key, func() (interface{}, error) {
		return m.authenticate(ctx, svc, token, key, opts)
	})
	if err != nil {
		// Don't hold failures in the flight group - let the next call retry
		m.group.Forget(key)
		return nil, err
	}

	set := v.(*Set)
	if shared {
		m.log.Trace("joined in-flight authentication",
			logger.String("service", svc.Name()),
			logger.String("user_id", set.UserID))
	}
	return &Result{Kind: KindFresh, Set: set}, nil
}

// authenticate runs inside the single-flight group
func (m *Manager) authenticate(ctx context.Context, svc Service, token *session.Token, key string, opts GetTokenOptions) (*Set, error) {
	ctx, cancel := context.WithTimeout(ctx, m.authTimeout)
	defer cancel()

	// Double check storage in case another goroutine finished between
	// our lookup and joining the flight
	now := m.clock()
	if set, err := m.loadSet(ctx, key); err != nil {
		return nil, err
	} else if set.Valid(now) {
		return set, nil
	}

	if err := m.limiter.Check(ctx, m.store, svc.RatePurpose(), token.Subject, opts.RateLimit); err != nil {
		return nil, err
	}

	caller, err := api.NewAuthClient(m.clientConfig, svc.DirectAddress(), opts.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build client for %s: %w", svc.Name(), err)
	}

	issued, err := svc.Authenticate(ctx, caller, token)
	if err != nil {
		return nil, err
	}

	set, err := m.storeIssued(ctx, svc, token, key, opts.ProxyURL, issued)
	if err != nil {
		return nil, err
	}

	m.log.Debug("service credentials issued",
		logger.String("service", svc.Name()),
		logger.String("user_id", set.UserID),
		logger.Time("expires_at", time.UnixMilli(set.ExpiresAt)))

	return set, nil
}

// storeIssued converts an Issued into a Set and persists it together
// with the subject index
func (m *Manager) storeIssued(ctx context.Context, svc Service, token *session.Token, key, proxyURL string, issued *Issued) (*Set, error) {
	userID := issued.UserID
	if userID == "" {
		userID = token.Subject
	}

	set := &Set{
		Service:   svc.Name(),
		UserID:    userID,
		Payload:   issued.Payload,
		ExpiresAt: m.clock().UnixMilli() + issued.ExpiresIn*1000,
		ProxyURL:  proxyURL,
	}

	if err := storage.SetJSON(ctx, m.store, key, set); err != nil {
		return nil, fmt.Errorf("failed to persist credential set: %w", err)
	}
	if err := m.persistSubjectIndex(ctx, svc, set.UserID, token.Raw); err != nil {
		return nil, err
	}

	m.cache.Set(key, set, 1)
	m.cache.Wait()

	return set, nil
}

// loadSet reads a set from storage; absence is not an error
func (m *Manager) loadSet(ctx context.Context, key string) (*Set, error) {
	var set Set
	err := storage.GetJSON(ctx, m.store, key, &set)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential set: %w", err)
	}
	return &set, nil
}

// persistSubjectIndex keeps the user-id to session-token index current.
// Written on every call, hits included, so lookups by user ID work even
// when the set itself never expired.
func (m *Manager) persistSubjectIndex(ctx context.Context, svc Service, userID, rawToken string) error {
	if userID == "" {
		return nil
	}
	key := storage.SubjectTokenKey(svc.Name(), userID)
	if err := storage.SetJSON(ctx, m.store, key, rawToken); err != nil {
		return fmt.Errorf("failed to persist subject index: %w", err)
	}
	return nil
}

// ResolveToken looks a raw session token up through the secondary index
func (m *Manager) ResolveToken(ctx context.Context, svc Service, userID string) (string, error) {
	var raw string
	err := storage.GetJSON(ctx, m.store, storage.SubjectTokenKey(svc.Name(), userID), &raw)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNoStoredToken, userID)
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

// Forget removes a user's sets and index entries for a service. Sets
// issued through a gateway carry the proxy in a key suffix, so the
// sweep covers every key derived from the token, not only the direct
// one.
func (m *Manager) Forget(ctx context.Context, svc Service, userID, rawToken string) error {
	base := storage.TokenKey(svc.Name(), rawToken)
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key != base && !strings.HasPrefix(key, base+"|proxy=") {
			continue
		}
		m.cache.Del(key)
		if err := m.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return m.store.Remove(ctx, storage.SubjectTokenKey(svc.Name(), userID))
}

// Client returns the set for (service, token) together with a
// ServiceClient whose requests repair the credential on an expiry
// signal. The renewal strategy is injected here, at construction.
func (m *Manager) Client(ctx context.Context, svc Service, token *session.Token, opts GetTokenOptions) (*ServiceClient, *Result, error) {
	result, err := m.GetToken(ctx, svc, token, opts)
	if err != nil {
		return nil, nil, err
	}

	caller, err := api.NewAuthClient(m.clientConfig, svc.DirectAddress(), opts.ProxyURL)
	if err != nil {
		return nil, nil, err
	}

	renewer := m.NewRenewer(svc, token, opts, result.Set)
	return NewServiceClient(caller, renewer, m.log.WithSubsystem(svc.Name())), result, nil
}

// Stop gracefully shuts down the manager
func (m *Manager) Stop() {
	m.cache.Close()
	m.log.Trace("credential manager cache closed")
}
