package view

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Pages renders full pages with the layout data every handler needs, and
// implements the shared failure path of page handlers.
type Pages struct {
	Engine   *Engine
	CSRF     *shared.CSRFManager
	Identity *identity.Manager
	Logger   *slog.Logger
}

// Data assembles TemplateData for the request. It pops one flash.
func (p *Pages) Data(r *http.Request, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if sess != nil {
		td.CSRFToken, _ = p.CSRF.EnsureToken(r.Context(), sess)
		td.Flash = sess.PopFlash()
	}
	if principal, ok := identity.PrincipalFrom(r.Context()); ok {
		td.Nav = Nav{
			SignedIn: true,
			Name:     principal.DisplayName(),
			Email:    principal.Email,
			PhotoURL: principal.PhotoURL,
		}
		td.Nav.Role, _ = rbac.RoleFrom(r.Context())
	}
	return td
}

// Render writes the page with status.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	td := p.Data(r, title, data)
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	if err := p.Engine.Render(w, name, td); err != nil {
		p.logger().Error("render page", slog.String("template", name), slog.Any("error", err))
		if status == http.StatusOK {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// Redirect queues a flash and redirects with 303.
func (p *Pages) Redirect(w http.ResponseWriter, r *http.Request, to, kind, msg string) {
	if msg != "" {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
		}
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// ConfirmPage is the data of the confirmation page.
type ConfirmPage struct {
	Prompt listctl.Prompt
	// Action is the URL the confirmed form posts back to.
	Action string
	// Fields are re-posted alongside the answer.
	Fields map[string]string
	Back   string
}

// Confirm renders a confirmation page for prompt. The page posts fields back
// to action with confirm=yes or confirm=no.
func (p *Pages) Confirm(w http.ResponseWriter, r *http.Request, page ConfirmPage) {
	if page.Prompt.Action.Confirm == "" {
		page.Prompt.Action.Confirm = "Yes, continue"
	}
	p.Render(w, r, http.StatusOK, "pages/confirm.html", page.Prompt.Action.Title, page)
}

// Fail handles a handler error. An expired credential signs the session out
// and sends the user to the login page. Anything else becomes a flash on the
// fallback page.
func (p *Pages) Fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if shared.IsAuthExpired(err) {
		p.Identity.SignOut(shared.SessionFromContext(r.Context()))
		p.Redirect(w, r, identity.LoginURL(r.URL.RequestURI()), shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	var verr *shared.ValidationError
	if !errors.As(err, &verr) {
		p.logger().Warn("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	p.Redirect(w, r, fallback, shared.FlashError, shared.UserSafeMessage(err))
}

// Expired runs the sign-out path of Fail when err is an expired credential
// and reports whether it did. List handlers call it on a snapshot error
// before rendering.
func (p *Pages) Expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil || !shared.IsAuthExpired(err) {
		return false
	}
	p.Fail(w, r, err, "")
	return true
}

// NotFound renders the not-found page.
func (p *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	p.Render(w, r, http.StatusNotFound, "pages/not_found.html", "Not found", nil)
}

func (p *Pages) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
