package identity

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

const refreshSkew = 2 * time.Minute

// Refresher renews credentials. *Provider implements it.
type Refresher interface {
	Refresh(ctx context.Context, cred Credential) (Credential, error)
}

// Manager owns the lifecycle of signed-in identities: it binds them to
// requests, refreshes credentials, and tears them down on sign-out or when
// the donation API rejects them.
type Manager struct {
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time

	// revoked maps session ids to the time their credential was rejected.
	revoked sync.Map

	mu        sync.RWMutex
	onSignOut []func(sessionID string)
}

// NewManager constructs a Manager.
func NewManager(refresher Refresher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{refresher: refresher, logger: logger, now: time.Now}
}

// OnSignOut registers a teardown hook run with the id of every session that
// signs out.
func (m *Manager) OnSignOut(fn func(sessionID string)) {
	m.mu.Lock()
	m.onSignOut = append(m.onSignOut, fn)
	m.mu.Unlock()
}

// SignIn binds a principal to the session under a fresh session id.
func (m *Manager) SignIn(sess *shared.Session, p Principal, c Credential) error {
	previous := sess.ID
	sess.Rotate()
	m.teardown(previous)
	return Save(sess, p, c)
}

// SignOut removes the identity from the session and unmounts its views.
func (m *Manager) SignOut(sess *shared.Session) {
	if sess == nil {
		return
	}
	Clear(sess)
	m.revoked.Delete(sess.ID)
	m.teardown(sess.ID)
}

func (m *Manager) teardown(sessionID string) {
	m.mu.RLock()
	hooks := append([]func(string){}, m.onSignOut...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(sessionID)
	}
}

// Revoke marks the session's credential as rejected. The next request of
// that session is signed out.
func (m *Manager) Revoke(sessionID string) {
	m.revoked.Store(sessionID, m.now())
}

// SweepRevoked forgets revocations older than maxAge, which should be the
// session lifetime: a session that has not come back by then is gone.
func (m *Manager) SweepRevoked(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)
	n := 0
	m.revoked.Range(func(key, value any) bool {
		if at, ok := value.(time.Time); !ok || at.Before(cutoff) {
			m.revoked.Delete(key)
			n++
		}
		return true
	})
	return n
}

// Run sweeps stale revocations every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, every, maxAge time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepRevoked(maxAge); n > 0 {
				m.logger.Debug("forgot stale revocations", slog.Int("count", n))
			}
		}
	}
}

// Middleware loads the principal from the session into the request context,
// refreshing the credential when it is about to expire. Sessions whose
// credential was rejected or cannot be refreshed are signed out.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}
		if _, revoked := m.revoked.LoadAndDelete(sess.ID); revoked {
			m.expire(sess, "credential rejected by api")
			next.ServeHTTP(w, r)
			return
		}
		principal, cred, ok := Load(sess)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if cred.Expired(m.now(), refreshSkew) && m.refresher != nil {
			fresh, err := m.refresher.Refresh(r.Context(), cred)
			if err != nil {
				if shared.IsAuthExpired(err) {
					m.expire(sess, "refresh rejected")
					next.ServeHTTP(w, r)
					return
				}
				m.logger.Warn("credential refresh failed", slog.Any("error", err))
			} else {
				cred = fresh
				if err := Save(sess, principal, cred); err != nil {
					m.logger.Warn("store refreshed credential", slog.Any("error", err))
				}
			}
		}
		ctx := WithPrincipal(r.Context(), principal)
		ctx = context.WithValue(ctx, bindingKey{}, &binding{
			manager:   m,
			sessionID: sess.ID,
			cred:      cred,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) expire(sess *shared.Session, reason string) {
	m.logger.Info("signing out expired session", slog.String("reason", reason))
	m.SignOut(sess)
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: shared.UserSafeMessage(&shared.AuthExpiredError{})})
}

// RequireSignedIn redirects anonymous requests to the login page.
func (m *Manager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: shared.FlashInfo, Message: "Please sign in to continue."})
			}
			http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL is the login page returning to next after sign-in.
func LoginURL(next string) string {
	if next == "" || next == "/" {
		return "/auth/login"
	}
	return "/auth/login?next=" + url.QueryEscape(next)
}

type bindingKey struct{}

// binding carries the request's credential. Background fetches started by
// the request may outlive it, so it is guarded separately from the session.
type binding struct {
	manager   *Manager
	sessionID string

	mu   sync.Mutex
	cred Credential
}

func (b *binding) Token(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cred.Expired(b.manager.now(), 0) && b.manager.refresher != nil {
		fresh, err := b.manager.refresher.Refresh(ctx, b.cred)
		if err != nil {
			if shared.IsAuthExpired(err) {
				b.manager.Revoke(b.sessionID)
			}
			return "", err
		}
		b.cred = fresh
	}
	return b.cred.IDToken, nil
}

// Client returns base authenticated as the request's principal. Anonymous
// requests get base unchanged.
func (m *Manager) Client(ctx context.Context, base *api.Client) *api.Client {
	b, ok := ctx.Value(bindingKey{}).(*binding)
	if !ok {
		return base
	}
	return base.WithCredentials(b, func(context.Context, int) {
		m.Revoke(b.sessionID)
	})
}

// CredentialFrom returns the credential bound to the request.
func CredentialFrom(ctx context.Context) (Credential, bool) {
	b, ok := ctx.Value(bindingKey{}).(*binding)
	if !ok {
		return Credential{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cred, true
}
