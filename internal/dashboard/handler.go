package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bloodbridge/bloodbridge/internal/donations"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/view"
)

// LatestRequests returns the signed-in donor's most recent requests.
// *donations.Handler implements it.
type LatestRequests interface {
	Latest(r *http.Request) (view.ListPage, []donations.Request, error)
}

// Handler serves the dashboard home.
type Handler struct {
	logger  *slog.Logger
	service *Service
	latest  LatestRequests
	pages   *view.Pages
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, latest LatestRequests, pages *view.Pages) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, latest: latest, pages: pages}
}

// MountRoutes registers the home page on the dashboard router.
func (h *Handler) MountRoutes(r chi.Router, guard rbac.Middleware) {
	r.With(guard.RequireRole()).Get("/", h.home)
}

type donorData struct {
	Name   string
	List   view.ListPage
	Items  []donations.Request
	Return string
}

type staffData struct {
	Name  string
	Role  rbac.Role
	Stats Stats
	Error string
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.PrincipalFrom(r.Context())
	role, _ := rbac.RoleFrom(r.Context())
	if !role.Staff() {
		list, items, err := h.latest.Latest(r)
		if h.pages.Expired(w, r, err) {
			return
		}
		h.pages.Render(w, r, http.StatusOK, "pages/dashboard_donor.html", "Dashboard", donorData{
			Name:   principal.DisplayName(),
			List:   list,
			Items:  items,
			Return: rbac.HomePath,
		})
		return
	}

	data := staffData{Name: principal.DisplayName(), Role: role}
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		if h.pages.Expired(w, r, err) {
			return
		}
		h.logger.Warn("dashboard stats failed", slog.Any("error", err))
		data.Error = shared.UserSafeMessage(err)
	}
	data.Stats = stats
	h.pages.Render(w, r, http.StatusOK, "pages/dashboard_staff.html", "Dashboard", data)
}
