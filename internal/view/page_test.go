package view

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

func newSignedInRequest(t *testing.T, target string) (*http.Request, *shared.Session) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sessions := shared.NewSessionManager(rdb, "bb_session", time.Hour, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, identity.Save(sess, identity.Principal{Email: "donor@example.com"}, identity.Credential{IDToken: "tok"}))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestExpiredSignsOutAndRedirects(t *testing.T) {
	manager := identity.NewManager(nil, nil)
	var tornDown string
	manager.OnSignOut(func(id string) { tornDown = id })
	p := &Pages{Identity: manager}
	req, sess := newSignedInRequest(t, "/dashboard/all-users?page=3")

	rec := httptest.NewRecorder()
	require.True(t, p.Expired(rec, req, &shared.AuthExpiredError{Status: http.StatusForbidden}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fdashboard%2Fall-users%3Fpage%3D3", rec.Header().Get("Location"))
	assert.Equal(t, sess.ID, tornDown)
	_, _, ok := identity.Load(sess)
	assert.False(t, ok)
}

func TestExpiredIgnoresOtherErrors(t *testing.T) {
	p := &Pages{Identity: identity.NewManager(nil, nil)}
	req, sess := newSignedInRequest(t, "/funding")

	for _, err := range []error{nil, errors.New("boom"), &shared.FetchError{Op: "fundings", Message: "down"}} {
		rec := httptest.NewRecorder()
		assert.False(t, p.Expired(rec, req, err))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
	}
	_, _, ok := identity.Load(sess)
	assert.True(t, ok)
}
