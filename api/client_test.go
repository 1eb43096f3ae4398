package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testConfig(address string) *Config {
	cfg := DefaultConfig()
	cfg.Address = address
	cfg.MinRetryWait = time.Millisecond
	cfg.MaxRetryWait = 5 * time.Millisecond
	return cfg
}

// ============================================================================
// Client
// ============================================================================

func TestClient_DoJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/thing", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"name":"ok"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.DoJSON(context.Background(), http.MethodGet, "/v1/thing", nil, &out))
	assert.Equal(t, "ok", out.Name)
}

func TestClient_DoJSON_StatusErrorKeepsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errorCode":"token.expired"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	err = client.DoJSON(context.Background(), http.MethodGet, "/v1/thing", nil, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.JSONEq(t, `{"errorCode":"token.expired"}`, string(statusErr.Body))
}

func TestClient_DoJSON_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	require.NoError(t, client.DoJSON(context.Background(), http.MethodGet, "/v1/thing", nil, nil))
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_DoJSON_NoRetryOn4xx(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	err = client.DoJSON(context.Background(), http.MethodGet, "/v1/thing", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_RequiresAddress(t *testing.T) {
	_, err := NewClient(&Config{})
	require.Error(t, err)
}

func TestClient_DoJSON_HonorsLimiter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	client, err := NewClient(cfg)
	require.NoError(t, err)

	// The burst token covers the first request
	require.NoError(t, client.DoJSON(context.Background(), http.MethodGet, "/v1/thing", nil, nil))

	// The second would have to wait an hour; a short deadline surfaces
	// that without the request ever leaving the process
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.DoJSON(ctx, http.MethodGet, "/v1/thing", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestParseRateLimit(t *testing.T) {
	rateLimit, burst, err := ParseRateLimit("2.5:10")
	require.NoError(t, err)
	assert.Equal(t, 2.5, rateLimit)
	assert.Equal(t, 10, burst)

	rateLimit, burst, err = ParseRateLimit("4")
	require.NoError(t, err)
	assert.Equal(t, 4.0, rateLimit)
	assert.Equal(t, 4, burst)

	_, _, err = ParseRateLimit("fast")
	require.Error(t, err)
}

// ============================================================================
// AuthClient factory
// ============================================================================

func TestNewAuthClient_Direct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("upstream"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	caller, err := NewAuthClient(testConfig(""), server.URL, "")
	require.NoError(t, err)
	assert.Equal(t, server.URL, caller.BaseURL())

	require.NoError(t, caller.DoJSON(context.Background(), http.MethodPost, "/v3/Account/Login", map[string]string{"a": "b"}, nil))
}

func TestNewAuthClient_Gateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/Account/Login", r.URL.Path)
		assert.Equal(t, "https://api-lp1.znc.srv.nintendo.net", r.URL.Query().Get("upstream"))
		w.Write([]byte(`{}`))
	}))
	defer gateway.Close()

	caller, err := NewAuthClient(testConfig(""), "https://api-lp1.znc.srv.nintendo.net", gateway.URL)
	require.NoError(t, err)
	assert.Equal(t, gateway.URL, caller.BaseURL())

	require.NoError(t, caller.DoJSON(context.Background(), http.MethodPost, "/v3/Account/Login", nil, nil))
}

func TestNewAuthClient_GatewayKeepsExistingQuery(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2.0.0/users/me", r.URL.Path)
		assert.Equal(t, "at-1", r.URL.Query().Get("access_token"))
		assert.Equal(t, "https://accounts.nintendo.com", r.URL.Query().Get("upstream"))
		w.Write([]byte(`{}`))
	}))
	defer gateway.Close()

	caller, err := NewAuthClient(testConfig(""), "https://accounts.nintendo.com", gateway.URL)
	require.NoError(t, err)

	require.NoError(t, caller.DoJSON(context.Background(), http.MethodGet, "/2.0.0/users/me?access_token=at-1", nil, nil))
}

// ============================================================================
// Error classification
// ============================================================================

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"status 429", &StatusError{StatusCode: 429}, true},
		{"status 502", &StatusError{StatusCode: 502}, true},
		{"status 503", &StatusError{StatusCode: 503}, true},
		{"status 504", &StatusError{StatusCode: 504}, true},
		{"status 520", &StatusError{StatusCode: 520}, true},
		{"status 527", &StatusError{StatusCode: 527}, true},
		{"status 401", &StatusError{StatusCode: 401}, false},
		{"status 500", &StatusError{StatusCode: 500}, false},
		{"conn reset", &TransportError{Err: syscall.ECONNRESET}, true},
		{"conn refused", &TransportError{Err: syscall.ECONNREFUSED}, true},
		{"broken pipe", &TransportError{Err: syscall.EPIPE}, true},
		{"auth rejected", &AuthenticationError{Service: "coral"}, false},
		{"token expired", &TokenExpiredError{Service: "coral"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestInterpretStatus(t *testing.T) {
	expired := InterpretStatus("splatnet2", &StatusError{StatusCode: 403, Body: []byte("gone")}, 403)
	var tokenErr *TokenExpiredError
	require.True(t, errors.As(expired, &tokenErr))
	assert.Equal(t, "splatnet2", tokenErr.Service)
	assert.True(t, errors.Is(expired, ErrTokenExpired))

	auth := InterpretStatus("coral", &StatusError{StatusCode: 401, Body: []byte("bad token")})
	var authErr *AuthenticationError
	require.True(t, errors.As(auth, &authErr))
	assert.True(t, errors.Is(auth, ErrAuthentication))

	plain := &StatusError{StatusCode: 500}
	assert.Equal(t, plain, InterpretStatus("coral", plain))

	transport := &TransportError{Err: syscall.ECONNRESET}
	assert.Equal(t, transport, InterpretStatus("coral", transport, 403))
}
