package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/echo-auth/internal/auth"
	"github.com/sakif/echo-auth/internal/config"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:             8080,
		StoreBackend:     backend,
		DBPath:           filepath.Join(dir, "nested", "accounts.db"),
		DataDir:          filepath.Join(dir, "files"),
		PasswordHash:     auth.AlgorithmBcrypt,
		BcryptCost:       4,
		JWTSecret:        "server-test-secret-0123456789",
		TokenTTL:         time.Hour,
		LogLevel:         "error",
		LoginRateLimit:   100,
		UnifyLoginErrors: true,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func post(t *testing.T, h http.Handler, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig(t, config.BackendSQLite))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok\n", rr.Body.String())
}

// TestSessionSurvivesRestart registers on one server, then builds a second
// server on the same storage and checks the old cookie still resolves.
func TestSessionSurvivesRestart(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendFile} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			first, err := New(cfg, slog.New(slog.DiscardHandler))
			require.NoError(t, err)

			rr := post(t, first.Handler(), "/api/register", map[string]string{
				"name": "Ann", "email": "ann@x.com", "password": "pw1", "confirmPassword": "pw1",
			}, nil)
			require.Equal(t, http.StatusCreated, rr.Code)
			cookie := sessionCookie(rr)
			require.NotNil(t, cookie)
			require.NoError(t, first.Close())

			second := newTestServer(t, cfg)
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			req.AddCookie(cookie)
			me := httptest.NewRecorder()
			second.Handler().ServeHTTP(me, req)

			require.Equal(t, http.StatusOK, me.Code)
			var user map[string]any
			require.NoError(t, json.NewDecoder(me.Body).Decode(&user))
			assert.Equal(t, "Ann", user["name"])
		})
	}
}

func TestNew_LogsAccountCount(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendFile} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			first, err := New(cfg, slog.New(slog.DiscardHandler))
			require.NoError(t, err)
			rr := post(t, first.Handler(), "/api/register", map[string]string{
				"name": "Ann", "email": "ann@x.com", "password": "pw1", "confirmPassword": "pw1",
			}, nil)
			require.Equal(t, http.StatusCreated, rr.Code)
			require.NoError(t, first.Close())

			var buf bytes.Buffer
			second, err := New(cfg, slog.New(slog.NewTextHandler(&buf, nil)))
			require.NoError(t, err)
			t.Cleanup(func() { second.Close() })

			assert.Contains(t, buf.String(), "routes configured")
			assert.Contains(t, buf.String(), "accounts=1")
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	cfg.LoginRateLimit = 3
	s := newTestServer(t, cfg)

	body := map[string]string{"email": "nobody@x.com", "password": "x"}
	for i := 0; i < 3; i++ {
		rr := post(t, s.Handler(), "/api/login", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	rr := post(t, s.Handler(), "/api/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Logout is not limited.
	assert.Equal(t, http.StatusOK, post(t, s.Handler(), "/api/logout", nil, nil).Code)
}

func TestNew_UnknownHasher(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	cfg.PasswordHash = "md5"

	_, err := New(cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
