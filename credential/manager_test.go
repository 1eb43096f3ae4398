package credential

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/ratelimit"
	"github.com/stephnangue/nxauth/session"
	"github.com/stephnangue/nxauth/storage"
)

// ============================================================================
// Mock Implementations
// ============================================================================

const (
	mockIssuer   = "https://issuer.test"
	mockClientID = "client-mock"
)

// mockService implements Service without any network access
type mockService struct {
	ServiceInfo

	authCalls  atomic.Int32
	renewCalls atomic.Int32

	authDelay time.Duration
	authErr   error
	expiresIn int64
	userID    string
}

func newMockService() *mockService {
	return &mockService{
		ServiceInfo: NewServiceInfo("mock", mockClientID, mockIssuer, "mock", "https://mock.invalid"),
		expiresIn:   3600,
		userID:      "user-1",
	}
}

func (s *mockService) issued(tag string) *Issued {
	return &Issued{
		Payload:   json.RawMessage(`{"access_token":"` + tag + `"}`),
		ExpiresIn: s.expiresIn,
		UserID:    s.userID,
	}
}

func (s *mockService) Authenticate(ctx context.Context, caller api.Caller, token *session.Token) (*Issued, error) {
	s.authCalls.Add(1)
	if s.authDelay > 0 {
		time.Sleep(s.authDelay)
	}
	if s.authErr != nil {
		return nil, s.authErr
	}
	return s.issued("from-auth"), nil
}

func (s *mockService) Renew(ctx context.Context, caller api.Caller, token *session.Token, current *Set) (*Issued, error) {
	s.renewCalls.Add(1)
	return s.issued("from-renew"), nil
}

// mockCaller implements api.Caller, returning a fixed error
type mockCaller struct {
	calls atomic.Int32
	err   error
}

func (c *mockCaller) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	c.calls.Add(1)
	return c.err
}

func (c *mockCaller) BaseURL() string {
	return "https://mock.invalid"
}

// ============================================================================
// Helpers
// ============================================================================

func testSessionToken(t *testing.T) *session.Token {
	t.Helper()
	claims := struct {
		Type string `json:"typ"`
		jwt.RegisteredClaims
	}{
		Type: session.TokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    mockIssuer,
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{mockClientID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * 365 * 24 * time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	token, err := session.Parse(raw)
	require.NoError(t, err)
	return token
}

func testManager(t *testing.T, requests int) (*Manager, storage.Storage) {
	t.Helper()
	log := logger.NewZerologLogger(logger.TestConfig())
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Init(context.Background()))

	limiter := ratelimit.NewLimiter(requests, time.Hour, log)
	m, err := NewManager(store, limiter, api.DefaultConfig(), log)
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, store
}

// ============================================================================
// GetToken
// ============================================================================

func TestManager_GetToken_FreshThenCached(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	first, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, KindFresh, first.Kind)
	assert.Equal(t, "mock", first.Set.Service)
	assert.Equal(t, "user-1", first.Set.UserID)

	second, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, KindCached, second.Kind)
	assert.Equal(t, first.Set.Payload, second.Set.Payload)

	// The cached call never touched the service
	assert.Equal(t, int32(1), svc.authCalls.Load())
}

func TestManager_GetToken_InvalidTokenFailsFast(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	ctx := context.Background()

	token := testSessionToken(t)
	token.Audience = "someone-else"

	_, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrInvalidToken))
	assert.Equal(t, int32(0), svc.authCalls.Load())
}

func TestManager_GetToken_SingleFlight(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	svc.authDelay = 50 * time.Millisecond
	token := testSessionToken(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), svc.authCalls.Load())
}

func TestManager_GetToken_FailureNotCached(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	svc.authErr = &api.AuthenticationError{Service: "mock", Message: "nope"}
	token := testSessionToken(t)
	ctx := context.Background()

	_, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.Error(t, err)

	// The failed flight was forgotten, the next call retries
	svc.authErr = nil
	result, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, KindFresh, result.Kind)
	assert.Equal(t, int32(2), svc.authCalls.Load())
}

func TestManager_GetToken_ExpiryTimeline(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	svc.expiresIn = 3600
	token := testSessionToken(t)
	ctx := context.Background()

	base := time.Now()
	current := base
	m.SetClock(func() time.Time { return current })

	// t=0: authenticates
	first, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, KindFresh, first.Kind)
	assert.Equal(t, base.UnixMilli()+3600*1000, first.Set.ExpiresAt)

	// t=3000s: still inside the hour, served from cache
	current = base.Add(3000 * time.Second)
	second, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, KindCached, second.Kind)
	assert.Equal(t, int32(1), svc.authCalls.Load())

	// t=3700s: expired, authenticates again
	current = base.Add(3700 * time.Second)
	third, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, KindFresh, third.Kind)
	assert.Equal(t, int32(2), svc.authCalls.Load())
}

func TestManager_GetToken_RateLimited(t *testing.T) {
	m, _ := testManager(t, 1)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	current := time.Now()
	m.SetClock(func() time.Time { return current })

	_, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)

	// Step past the set's lifetime so the second call needs a real
	// authentication. The limiter runs on the wall clock, so the first
	// attempt is still inside its window.
	current = current.Add(2 * time.Hour)

	_, err = m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.Error(t, err)
	var limited *ratelimit.LimitExceededError
	assert.True(t, errors.As(err, &limited))
}

func TestManager_GetToken_ProxyScopesCache(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	direct, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, KindFresh, direct.Kind)

	proxied, err := m.GetToken(ctx, svc, token, GetTokenOptions{
		RateLimit: true,
		ProxyURL:  "https://gw.example.com/api",
	})
	require.NoError(t, err)
	assert.Equal(t, KindFresh, proxied.Kind)
	assert.Equal(t, "https://gw.example.com/api", proxied.Set.ProxyURL)

	// Two separate authentications, one per cache key
	assert.Equal(t, int32(2), svc.authCalls.Load())
}

// ============================================================================
// Subject index
// ============================================================================

func TestManager_SubjectIndex(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	_, err := m.ResolveToken(ctx, svc, "user-1")
	assert.True(t, errors.Is(err, ErrNoStoredToken))

	_, err = m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)

	raw, err := m.ResolveToken(ctx, svc, "user-1")
	require.NoError(t, err)
	assert.Equal(t, token.Raw, raw)

	// Cache hits keep the index current too
	_, err = m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	raw, err = m.ResolveToken(ctx, svc, "user-1")
	require.NoError(t, err)
	assert.Equal(t, token.Raw, raw)
}

func TestManager_Forget(t *testing.T) {
	m, store := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	_, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)

	require.NoError(t, m.Forget(ctx, svc, "user-1", token.Raw))

	_, err = store.Get(ctx, storage.TokenKey("mock", token.Raw))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = m.ResolveToken(ctx, svc, "user-1")
	assert.True(t, errors.Is(err, ErrNoStoredToken))
}

func TestManager_Forget_SweepsProxyScopedSets(t *testing.T) {
	m, store := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	_, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)
	_, err = m.GetToken(ctx, svc, token, GetTokenOptions{
		RateLimit: true,
		ProxyURL:  "https://gw.example.com/api",
	})
	require.NoError(t, err)
	require.Equal(t, int32(2), svc.authCalls.Load())

	require.NoError(t, m.Forget(ctx, svc, "user-1", token.Raw))

	// Neither the direct nor the proxy-scoped key survives
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	for _, key := range keys {
		assert.False(t, strings.HasPrefix(key, storage.TokenKey("mock", token.Raw)), key)
	}

	// A proxied call after the sweep must authenticate again
	result, err := m.GetToken(ctx, svc, token, GetTokenOptions{
		RateLimit: true,
		ProxyURL:  "https://gw.example.com/api",
	})
	require.NoError(t, err)
	assert.Equal(t, KindFresh, result.Kind)
	assert.Equal(t, int32(3), svc.authCalls.Load())
}

// ============================================================================
// Renewal
// ============================================================================

func TestRenewer_ReplacesSet(t *testing.T) {
	m, store := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	result, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)

	renewer := m.NewRenewer(svc, token, GetTokenOptions{RateLimit: true}, result.Set)
	renewed, err := renewer.Renew(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), svc.renewCalls.Load())
	assert.JSONEq(t, `{"access_token":"from-renew"}`, string(renewed.Payload))
	assert.Same(t, renewed, renewer.Current())

	// The persisted set was replaced as well
	var stored Set
	require.NoError(t, storage.GetJSON(ctx, store, storage.TokenKey("mock", token.Raw), &stored))
	assert.JSONEq(t, `{"access_token":"from-renew"}`, string(stored.Payload))
}

func TestRenewer_CountsAgainstRateLimit(t *testing.T) {
	m, _ := testManager(t, 1)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	result, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)

	renewer := m.NewRenewer(svc, token, GetTokenOptions{RateLimit: true}, result.Set)
	_, err = renewer.Renew(ctx)
	require.Error(t, err)
	var limited *ratelimit.LimitExceededError
	assert.True(t, errors.As(err, &limited))
	assert.Equal(t, int32(0), svc.renewCalls.Load())
}

func TestServiceClient_RenewsOnExpirySignal(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	result, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)

	expiredErr := &api.TokenExpiredError{Service: "mock", Message: "status 9404"}
	caller := &mockCaller{err: expiredErr}
	renewer := m.NewRenewer(svc, token, GetTokenOptions{RateLimit: true}, result.Set)
	client := NewServiceClient(caller, renewer, logger.NewZerologLogger(logger.TestConfig()))

	err = client.DoJSON(ctx, "POST", "/v3/Friend/List", nil, nil)

	// The original failure surfaces unchanged and is never replayed
	require.Error(t, err)
	assert.Equal(t, expiredErr, err)
	assert.Equal(t, int32(1), caller.calls.Load())

	// But the credential set was repaired for the next call
	assert.Equal(t, int32(1), svc.renewCalls.Load())
	assert.JSONEq(t, `{"access_token":"from-renew"}`, string(renewer.Current().Payload))
}

func TestServiceClient_PassesThroughOtherErrors(t *testing.T) {
	m, _ := testManager(t, 100)
	svc := newMockService()
	token := testSessionToken(t)
	ctx := context.Background()

	result, err := m.GetToken(ctx, svc, token, GetTokenOptions{RateLimit: true})
	require.NoError(t, err)

	caller := &mockCaller{err: &api.StatusError{StatusCode: 500}}
	renewer := m.NewRenewer(svc, token, GetTokenOptions{RateLimit: true}, result.Set)
	client := NewServiceClient(caller, renewer, logger.NewZerologLogger(logger.TestConfig()))

	err = client.DoJSON(ctx, "GET", "/anything", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(0), svc.renewCalls.Load())
}
