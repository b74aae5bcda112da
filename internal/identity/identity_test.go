package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

func signToken(t *testing.T, email string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Email:  email,
		UserID: "uid-" + email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)
	return token
}

func newFakeProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(ProviderConfig{BaseURL: srv.URL + "/v1", TokenURL: srv.URL + "/token", APIKey: "k"}, nil)
}

func TestSignInMapsInvalidCredentials(t *testing.T) {
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
	})

	_, _, err := p.SignIn(context.Background(), "a@example.com", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSignInReturnsPrincipal(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	idToken := signToken(t, "donor@example.com", exp)
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"localId":      "uid-1",
			"email":        "donor@example.com",
			"displayName":  "Rahima",
			"idToken":      idToken,
			"refreshToken": "refresh-1",
			"expiresIn":    "3600",
		})
	})

	principal, cred, err := p.SignIn(context.Background(), "donor@example.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, "Rahima", principal.Name)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.True(t, cred.Expiry.Equal(exp))
}

func TestSignUpSurfacesProviderCode(t *testing.T) {
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"EMAIL_EXISTS"}}`))
	})
	_, _, err := p.SignUp(context.Background(), "a@example.com", "Secret1!")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "An account with this email already exists.", perr.Message())
}

func TestRefreshUsesTokenEndpoint(t *testing.T) {
	fresh := signToken(t, "donor@example.com", time.Now().Add(time.Hour))
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  fresh,
			"id_token":      fresh,
			"refresh_token": "refresh-2",
			"expires_in":    "3600",
			"token_type":    "Bearer",
		})
	})

	cred, err := p.Refresh(context.Background(), Credential{IDToken: "old", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	assert.Equal(t, fresh, cred.IDToken)
	assert.Equal(t, "refresh-2", cred.RefreshToken)
}

func TestRefreshRejectedIsAuthExpired(t *testing.T) {
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	_, err := p.Refresh(context.Background(), Credential{RefreshToken: "revoked"})
	assert.True(t, shared.IsAuthExpired(err))
}

type stubRefresher struct {
	cred  Credential
	err   error
	calls int
}

func (s *stubRefresher) Refresh(context.Context, Credential) (Credential, error) {
	s.calls++
	return s.cred, s.err
}

func newSession(t *testing.T) *shared.Session {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sm := shared.NewSessionManager(client, "bb_session", time.Hour, false)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return sess
}

func serve(m *Manager, sess *shared.Session, h http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareBindsPrincipal(t *testing.T) {
	sess := newSession(t)
	m := NewManager(nil, nil)
	require.NoError(t, m.SignIn(sess, Principal{Email: "donor@example.com"}, Credential{IDToken: "tok", Expiry: time.Now().Add(time.Hour)}))
	assert.Equal(t, "donor@example.com", sess.Subject())

	var got Principal
	var token string
	serve(m, sess, func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
		cred, _ := CredentialFrom(r.Context())
		token = cred.IDToken
	})
	assert.Equal(t, "donor@example.com", got.Email)
	assert.Equal(t, "tok", token)
}

func TestMiddlewareRefreshesNearExpiry(t *testing.T) {
	sess := newSession(t)
	ref := &stubRefresher{cred: Credential{IDToken: "new", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}}
	m := NewManager(ref, nil)
	require.NoError(t, Save(sess, Principal{Email: "donor@example.com"}, Credential{IDToken: "old", RefreshToken: "r", Expiry: time.Now().Add(30 * time.Second)}))

	serve(m, sess, func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(t, 1, ref.calls)
	_, cred, ok := Load(sess)
	require.True(t, ok)
	assert.Equal(t, "new", cred.IDToken)
}

func TestMiddlewareSignsOutWhenRefreshRejected(t *testing.T) {
	sess := newSession(t)
	ref := &stubRefresher{err: &shared.AuthExpiredError{Status: 400}}
	m := NewManager(ref, nil)
	var tornDown string
	m.OnSignOut(func(id string) { tornDown = id })
	require.NoError(t, Save(sess, Principal{Email: "donor@example.com"}, Credential{IDToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Minute)}))

	signedIn := true
	serve(m, sess, func(w http.ResponseWriter, r *http.Request) {
		_, signedIn = PrincipalFrom(r.Context())
	})
	assert.False(t, signedIn)
	assert.Equal(t, sess.ID, tornDown)
	_, _, ok := Load(sess)
	assert.False(t, ok)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashError, flash.Kind)
}

func TestRejectedCallRevokesSession(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	sess := newSession(t)
	m := NewManager(nil, nil)
	require.NoError(t, Save(sess, Principal{Email: "donor@example.com"}, Credential{IDToken: "tok"}))
	base := api.NewClient(upstream.URL, time.Second, nil)

	var callErr error
	serve(m, sess, func(w http.ResponseWriter, r *http.Request) {
		_, callErr = m.Client(r.Context(), base).Get(r.Context(), "/regesterDoner", nil)
	})
	require.True(t, shared.IsAuthExpired(callErr))

	signedIn := true
	serve(m, sess, func(w http.ResponseWriter, r *http.Request) {
		_, signedIn = PrincipalFrom(r.Context())
	})
	assert.False(t, signedIn, "the next request must be signed out")
}

func TestSweepRevokedForgetsAbandonedSessions(t *testing.T) {
	m := NewManager(nil, nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	for i := 0; i < 100; i++ {
		m.Revoke("gone-" + strconv.Itoa(i))
	}
	now = now.Add(2 * time.Hour)
	m.Revoke("recent")

	assert.Equal(t, 100, m.SweepRevoked(time.Hour))
	_, ok := m.revoked.Load("gone-0")
	assert.False(t, ok)
	_, ok = m.revoked.Load("recent")
	assert.True(t, ok)
	assert.Zero(t, m.SweepRevoked(time.Hour))
}

func TestRevokedSessionSignsOutAfterSweep(t *testing.T) {
	sess := newSession(t)
	m := NewManager(nil, nil)
	require.NoError(t, Save(sess, Principal{Email: "donor@example.com"}, Credential{IDToken: "tok"}))
	m.Revoke(sess.ID)
	m.SweepRevoked(time.Hour)

	signedIn := true
	serve(m, sess, func(w http.ResponseWriter, r *http.Request) {
		_, signedIn = PrincipalFrom(r.Context())
	})
	assert.False(t, signedIn)
	_, ok := m.revoked.Load(sess.ID)
	assert.False(t, ok)
}

func TestRequireSignedInRedirects(t *testing.T) {
	m := NewManager(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/dashboard/profile", nil)
	rec := httptest.NewRecorder()
	m.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fdashboard%2Fprofile", rec.Header().Get("Location"))
}

func TestParseClaims(t *testing.T) {
	token := signToken(t, "x@example.com", time.Now().Add(time.Hour))
	claims, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", claims.Email)

	_, err = ParseClaims("not-a-token")
	assert.Error(t, err)
}
