package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigenflux/sigenflux/internal/auth"
	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
	"github.com/sigenflux/sigenflux/internal/token"
)

// tokenServer fakes the vendor token endpoint and counts grants by type.
type tokenServer struct {
	mu            sync.Mutex
	passwordCalls int
	refreshCalls  int

	// respond decides the envelope per request; nil means always succeed.
	respond func(grantType string, w http.ResponseWriter)
	serial  int
}

func (s *tokenServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/oauth/token", r.URL.Path)
		require.Equal(t, "Basic c2lnZW46c2lnZW4=", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())

		grantType := r.PostForm.Get("grant_type")

		s.mu.Lock()
		switch grantType {
		case "password":
			s.passwordCalls++
		case "refresh_token":
			s.refreshCalls++
		default:
			t.Errorf("unexpected grant_type %q", grantType)
		}
		s.serial++
		serial := s.serial
		respond := s.respond
		s.mu.Unlock()

		if respond != nil {
			respond(grantType, w)
			return
		}
		writeTokenResponse(w, fmt.Sprintf("access-%d", serial), fmt.Sprintf("refresh-%d", serial), 3600)
	}
}

func (s *tokenServer) counts() (password, refresh int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passwordCalls, s.refreshCalls
}

func writeTokenResponse(w http.ResponseWriter, access, refresh string, expiresIn int64) {
	json.NewEncoder(w).Encode(map[string]any{
		"code": 0,
		"msg":  "success",
		"data": map[string]any{
			"access_token":  access,
			"refresh_token": refresh,
			"expires_in":    expiresIn,
		},
	})
}

func writeVendorRejection(w http.ResponseWriter, code int, msg string) {
	json.NewEncoder(w).Encode(map[string]any{
		"code": code,
		"msg":  msg,
	})
}

func newTestClient(t *testing.T, baseURL string) (*auth.Client, *token.Store, string) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := token.NewStore(path)
	client, err := auth.NewClient(auth.Config{
		Username:            "user@example.com",
		TransformedPassword: "opaque-secret",
		BaseURL:             baseURL,
		Backoff:             common.Backoff{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	}, store)
	require.NoError(t, err)
	return client, store, path
}

func TestEnsureValidAuthenticatesWhenNoToken(t *testing.T) {
	srv := &tokenServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, store, _ := newTestClient(t, ts.URL)

	rec, err := client.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", rec.AccessToken)
	assert.Equal(t, auth.StateAuthenticated, client.State())

	password, refresh := srv.counts()
	assert.Equal(t, 1, password)
	assert.Equal(t, 0, refresh)

	// The record must be persisted for the next invocation.
	persisted, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.AccessToken, persisted.AccessToken)
}

func TestEnsureValidReusesUnexpiredToken(t *testing.T) {
	srv := &tokenServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, store, _ := newTestClient(t, ts.URL)
	require.NoError(t, store.Save(token.Record{
		AccessToken:  "cached",
		RefreshToken: "cached-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	rec, err := client.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", rec.AccessToken)

	password, refresh := srv.counts()
	assert.Zero(t, password)
	assert.Zero(t, refresh)
}

func TestEnsureValidRefreshesExpiredToken(t *testing.T) {
	srv := &tokenServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, store, _ := newTestClient(t, ts.URL)
	require.NoError(t, store.Save(token.Record{
		AccessToken:  "stale",
		RefreshToken: "still-good",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	rec, err := client.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "stale", rec.AccessToken)

	password, refresh := srv.counts()
	assert.Zero(t, password, "refresh must not fall back to credentials while the refresh token works")
	assert.Equal(t, 1, refresh)
}

func TestEnsureValidInvalidRefreshFallsBackToAuthenticate(t *testing.T) {
	srv := &tokenServer{}
	srv.respond = func(grantType string, w http.ResponseWriter) {
		if grantType == "refresh_token" {
			writeVendorRejection(w, 26004, "refresh token expired")
			return
		}
		writeTokenResponse(w, "fresh", "fresh-refresh", 3600)
	}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, store, _ := newTestClient(t, ts.URL)
	require.NoError(t, store.Save(token.Record{
		AccessToken:  "stale",
		RefreshToken: "dead",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	rec, err := client.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.AccessToken)

	password, refresh := srv.counts()
	assert.Equal(t, 1, refresh, "a rejected refresh token is never retried")
	assert.Equal(t, 1, password)
}

func TestEnsureValidCorruptTokenFileReauthenticates(t *testing.T) {
	srv := &tokenServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, _, path := newTestClient(t, ts.URL)
	// Simulate a truncated write from an older, non-atomic version.
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":`), 0o600))

	rec, err := client.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rec.AccessToken)

	password, _ := srv.counts()
	assert.Equal(t, 1, password)
}

func TestAuthenticateInvalidCredentialsIsTerminal(t *testing.T) {
	srv := &tokenServer{}
	srv.respond = func(_ string, w http.ResponseWriter) {
		writeVendorRejection(w, 26002, "account or password error")
	}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, _, _ := newTestClient(t, ts.URL)

	_, err := client.EnsureValid(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, auth.ErrInvalidTransform))
	assert.Equal(t, auth.StateFailed, client.State())

	password, _ := srv.counts()
	assert.Equal(t, 1, password, "terminal rejections are never retried")
}

func TestExchangeRetriesTransientServerError(t *testing.T) {
	var calls int
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeTokenResponse(w, "after-retry", "r", 3600)
	}))
	defer ts.Close()

	client, _, _ := newTestClient(t, ts.URL)

	rec, err := client.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "after-retry", rec.AccessToken)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestConcurrentEnsureValidRefreshesOnce(t *testing.T) {
	srv := &tokenServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, store, _ := newTestClient(t, ts.URL)
	require.NoError(t, store.Save(token.Record{
		AccessToken:  "stale",
		RefreshToken: "still-good",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.EnsureValid(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, refresh := srv.counts()
	assert.Equal(t, 1, refresh, "one expiry event must produce exactly one refresh")
}

func TestForceRefreshReusesAlreadyReplacedToken(t *testing.T) {
	srv := &tokenServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, store, _ := newTestClient(t, ts.URL)
	stale := token.Record{AccessToken: "stale", RefreshToken: "r0", ExpiresAt: time.Now().Add(time.Hour)}

	// Another invocation already rotated the token while we held ours.
	require.NoError(t, store.Save(token.Record{
		AccessToken:  "rotated",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	rec, err := client.ForceRefresh(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, "rotated", rec.AccessToken)

	password, refresh := srv.counts()
	assert.Zero(t, password)
	assert.Zero(t, refresh, "the rotated token is reused instead of burning another refresh")
}

func TestForceRefreshReplacesRejectedToken(t *testing.T) {
	srv := &tokenServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client, store, _ := newTestClient(t, ts.URL)
	stale := token.Record{AccessToken: "rejected", RefreshToken: "r0", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(stale))

	rec, err := client.ForceRefresh(context.Background(), stale)
	require.NoError(t, err)
	assert.NotEqual(t, "rejected", rec.AccessToken)

	_, refresh := srv.counts()
	assert.Equal(t, 1, refresh)
}
