package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbridge/bloodbridge/internal/shared"
	_ "github.com/bloodbridge/bloodbridge/testing"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"SESSION_SECRET": "s",
		"CSRF_SECRET":    "c",
		"API_BASE_URL":   "http://api.local",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setEnv(t, baseEnv())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, CacheRedis, cfg.ListCacheBackend)
	assert.Equal(t, 1500*time.Millisecond, cfg.ViewAwaitBudget)
	assert.Equal(t, int64(6<<20), cfg.MaxBodyBytes)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.AuditEnabled())
	assert.False(t, cfg.ImageUploadsEnabled(), "no key configured")
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown cache backend": {"LIST_CACHE_BACKEND": "memcached"},
		"zero await budget":     {"VIEW_AWAIT_BUDGET": "0s"},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			setEnv(t, baseEnv())
			setEnv(t, extra)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRequiresAPIBaseURL(t *testing.T) {
	env := baseEnv()
	env["API_BASE_URL"] = ""
	setEnv(t, env)
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestOptionalFeatures(t *testing.T) {
	cfg := &Config{PGDSN: "postgres://x", ImageHostURL: "https://img.local", ImageHostKey: "k", AppEnv: "production"}
	assert.True(t, cfg.AuditEnabled())
	assert.True(t, cfg.ImageUploadsEnabled())
	assert.True(t, cfg.IsProduction())

	var missing *Config
	assert.False(t, missing.AuditEnabled())
}

func newStack(t *testing.T, cfg *Config) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "bb_session", time.Hour, false)
	csrf := shared.NewCSRFManager("secret")

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         NewLogger(cfg),
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
	}) {
		r.Use(mw)
	}
	r.Get("/form", func(w http.ResponseWriter, r *http.Request) {
		token, err := csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		require.NoError(t, err)
		_, _ = io.WriteString(w, token)
	})
	r.Post("/form", func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// fetchToken loads the form and returns its token and session cookie.
func fetchToken(t *testing.T, h http.Handler) (string, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return rec.Body.String(), cookies[0]
}

func TestSecurityHeaders(t *testing.T) {
	h := newStack(t, &Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form", nil))

	assert.Equal(t, contentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestCSRFGuardsWrites(t *testing.T) {
	h := newStack(t, &Config{})
	token, cookie := fetchToken(t, h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.AddCookie(cookie)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing token")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(shared.CSRFFormField+"="+token))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/form", nil)
	req.Header.Set("X-CSRF-Token", "forged")
	req.AddCookie(cookie)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "wrong token")
}

func TestBodyLimit(t *testing.T) {
	h := newStack(t, &Config{MaxBodyBytes: 16})
	token, cookie := fetchToken(t, h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(cookie)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
