package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"thermostat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tokenServer counts exchanges and answers with a numbered token.
func tokenServer(t *testing.T, expiresIn int, check func(r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.NoError(t, r.ParseForm())
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   expiresIn,
			"token_type":   "Bearer",
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestCache(clock *fakeClock) *CredentialCache {
	return NewCredentialCache(CredentialCacheConfig{
		Base:   newTestBase(),
		Margin: DefaultTokenExpiryMargin,
		Now:    clock.Now,
	})
}

func TestCredentialCache_ClientCredentialsGrant(t *testing.T) {
	server, calls := tokenServer(t, 10800, func(r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "read:device:current_values", r.PostForm.Get("scope"))
	})
	clock := newFakeClock()
	cache := newTestCache(clock)
	cache.Register(types.APIAirthings, ClientCredentialsGrant(server.URL, "client-id", "s3cret", "read:device:current_values"))

	tok, err := cache.Token(context.Background(), types.APIAirthings)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	// Cached until expires_in - margin.
	clock.Advance(10800*time.Second - DefaultTokenExpiryMargin - time.Second)
	tok, err = cache.Token(context.Background(), types.APIAirthings)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	tok, err = cache.Token(context.Background(), types.APIAirthings)
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCredentialCache_ZeroMarginUsesDefault(t *testing.T) {
	server, calls := tokenServer(t, 3600, nil)
	clock := newFakeClock()
	cache := NewCredentialCache(CredentialCacheConfig{Base: newTestBase(), Now: clock.Now})
	cache.Register(types.APINest, RefreshTokenGrant(server.URL, "c", "s", "r"))

	_, err := cache.Token(context.Background(), types.APINest)
	require.NoError(t, err)

	// Inside the default margin the token is already stale.
	clock.Advance(time.Hour - DefaultTokenExpiryMargin)
	tok, err := cache.Token(context.Background(), types.APINest)
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCredentialCache_RefreshTokenGrant(t *testing.T) {
	server, _ := tokenServer(t, 3599, func(r *http.Request) {
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-abc", r.PostForm.Get("refresh_token"))
	})
	cache := newTestCache(newFakeClock())
	cache.Register(types.APINest, RefreshTokenGrant(server.URL, "client", "secret", "refresh-abc"))

	tok, err := cache.Token(context.Background(), types.APINest)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
}

func TestCredentialCache_ShortLivedTokenIsUsedOnce(t *testing.T) {
	server, calls := tokenServer(t, 60, nil)
	cache := newTestCache(newFakeClock())
	cache.Register(types.APINest, RefreshTokenGrant(server.URL, "c", "s", "r"))

	tok, err := cache.Token(context.Background(), types.APINest)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	tok, err = cache.Token(context.Background(), types.APINest)
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCredentialCache_ConcurrentCallersShareOneExchange(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"access_token":"shared","expires_in":3600}`))
	}))
	defer server.Close()

	cache := newTestCache(newFakeClock())
	cache.Register(types.APIAirthings, ClientCredentialsGrant(server.URL, "c", "s", ""))

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Token(context.Background(), types.APIAirthings)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCredentialCache_ExchangeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	cache := newTestCache(newFakeClock())
	cache.Register(types.APINest, RefreshTokenGrant(server.URL, "c", "s", "revoked"))

	_, err := cache.Token(context.Background(), types.APINest)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeAuthTokenExchange))
	assert.Contains(t, err.Error(), "nest token exchange returned 400")
}

func TestCredentialCache_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer server.Close()

	cache := newTestCache(newFakeClock())
	cache.Register(types.APINest, RefreshTokenGrant(server.URL, "c", "s", "r"))

	_, err := cache.Token(context.Background(), types.APINest)
	assert.True(t, types.HasCode(err, types.ErrCodeAuthTokenMalformed))
}

func TestCredentialCache_UnknownAPI(t *testing.T) {
	cache := newTestCache(newFakeClock())

	_, err := cache.Token(context.Background(), "unknown")
	assert.True(t, types.HasCode(err, types.ErrCodeAuthNotConfigured))
}

func TestCredentialCache_Invalidate(t *testing.T) {
	server, calls := tokenServer(t, 3600, nil)
	cache := newTestCache(newFakeClock())
	cache.Register(types.APINest, RefreshTokenGrant(server.URL, "c", "s", "r"))

	_, err := cache.Token(context.Background(), types.APINest)
	require.NoError(t, err)
	cache.Invalidate(types.APINest)
	tok, err := cache.Token(context.Background(), types.APINest)
	require.NoError(t, err)

	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), calls.Load())
}
