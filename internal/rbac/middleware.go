package rbac

import (
	"log/slog"
	"net/http"

	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// HomePath is where users land when a page is outside their role.
const HomePath = "/dashboard"

// Middleware wires role checks for HTTP handlers.
type Middleware struct {
	Service  *Service
	Identity *identity.Manager
	Logger   *slog.Logger
}

// RequireRole resolves the role of the signed-in user into the request
// context and lets the request through when it is one of roles. With no
// roles any signed-in user passes.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := identity.PrincipalFrom(r.Context())
			if !ok {
				http.Redirect(w, r, identity.LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			role, err := m.Service.Role(r.Context(), principal.Email)
			if err != nil {
				m.fail(w, r, err)
				return
			}
			if !hasRole(allowed, role) {
				m.logger().Info("role denied",
					slog.String("path", r.URL.Path),
					slog.String("role", string(role)))
				if r.Method != http.MethodGet {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
				flash(r, shared.FlashError, "You do not have access to that page.")
				http.Redirect(w, r, HomePath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
		})
	}
}

func (m Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.IsAuthExpired(err) {
		if m.Identity != nil {
			m.Identity.SignOut(shared.SessionFromContext(r.Context()))
		}
		flash(r, shared.FlashError, shared.UserSafeMessage(err))
		http.Redirect(w, r, identity.LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}
	m.logger().Error("rbac resolve role", slog.Any("error", err))
	flash(r, shared.FlashError, shared.UserSafeMessage(err))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func flash(r *http.Request, kind, msg string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
	}
}

func normalizeRoles(roles []Role) map[Role]struct{} {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		if parsed, ok := ParseRole(string(r)); ok {
			set[parsed] = struct{}{}
		}
	}
	return set
}

func hasRole(allowed map[Role]struct{}, role Role) bool {
	if len(allowed) == 0 {
		return true
	}
	_, ok := allowed[role]
	return ok
}
