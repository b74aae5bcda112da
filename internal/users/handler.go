package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/view"
)

// PathAll is the admin user list.
const PathAll = "/dashboard/all-users"

const viewAll = "users.all"

var defaultQuery = listctl.Query{Page: listctl.DefaultPage, Limit: listctl.DefaultLimit}

// Handler manages user management endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	source      *listctl.Source[Donor]
	registry    *listctl.Registry
	pages       *view.Pages
	awaitBudget time.Duration
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, store listctl.Store, ttl time.Duration, registry *listctl.Registry, pages *view.Pages, awaitBudget time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		source: listctl.NewSource[Donor](listctl.SourceConfig{
			Resource: ResourceAll,
			Store:    store,
			TTL:      ttl,
			Logger:   logger,
		}),
		registry:    registry,
		pages:       pages,
		awaitBudget: awaitBudget,
	}
}

// MountRoutes registers user routes. Only admins manage accounts.
func (h *Handler) MountRoutes(r chi.Router, guard rbac.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireRole(rbac.RoleAdmin))
		r.Get("/all-users", h.listUsers)
		r.Post("/all-users/{id}/status", h.changeStatus)
		r.Post("/all-users/{id}/role", h.changeRole)
	})
}

// parseQuery reads the list query, mapping the "all" tab onto no filter.
func parseQuery(q listctl.Query) listctl.Query {
	if _, ok := rbac.ParseUserStatus(q.Filter(FilterStatus)); !ok {
		delete(q.Filters, FilterStatus)
	}
	return q
}

func (h *Handler) spec(r *http.Request, q listctl.Query) view.ListSpec[Donor] {
	p, _ := identity.PrincipalFrom(r.Context())
	return view.ListSpec[Donor]{
		Name:    viewAll,
		Source:  h.source,
		Scope:   p.Email,
		Load:    h.service.Load(r.Context()),
		Mutator: h.service.Mutator(p.Email),
		Query:   q,
	}
}

type listPageData struct {
	List     view.ListPage
	Items    []Donor
	Statuses []rbac.UserStatus
	Roles    []rbac.Role
	Status   string
	Search   string
	Return   string
	Self     string
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(listctl.ParseQuery(r.URL.Query(), defaultQuery, FilterStatus))
	ctrl := view.MountList(r, h.registry, h.spec(r, q), h.logger)
	snap := ctrl.Await(r.Context(), h.awaitBudget)
	if h.pages.Expired(w, r, snap.Err) {
		return
	}
	p, _ := identity.PrincipalFrom(r.Context())
	h.pages.Render(w, r, http.StatusOK, "pages/all_users.html", "All users", listPageData{
		List:     view.NewListPage(PathAll, snap),
		Items:    snap.Response.Items,
		Statuses: Statuses,
		Roles:    PromotableRoles,
		Status:   snap.Query.Filter(FilterStatus),
		Search:   snap.Query.Search,
		Return:   snap.Query.URL(PathAll),
		Self:     p.Email,
	})
}

func (h *Handler) controller(r *http.Request) *listctl.Controller[Donor] {
	q := parseQuery(view.ReturnQuery(r, defaultQuery, FilterStatus))
	return view.LookupList(r, h.registry, h.spec(r, q), h.logger)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := rbac.ParseUserStatus(r.PostFormValue(payloadStatus))
	if !ok {
		h.pages.Redirect(w, r, PathAll, shared.FlashError, "Choose active or blocked.")
		return
	}
	verb := "blocked"
	if status == rbac.UserActive {
		verb = "unblocked"
	}
	view.Perform(h.pages, w, r, h.controller(r), view.Mutation{
		Action: listctl.Action{
			Kind:    listctl.ActionStatus,
			Title:   "Are you sure?",
			Message: fmt.Sprintf("This user will be %s.", status),
			Confirm: "Yes",
			Danger:  status == rbac.UserBlocked,
		},
		SubjectID: chi.URLParam(r, "id"),
		Payload:   map[string]string{payloadStatus: string(status)},
		Path:      PathAll,
		Success:   "User " + verb + ".",
	})
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	role, ok := rbac.ParseRole(r.PostFormValue(payloadRole))
	if !ok || role == rbac.RoleDonor {
		h.pages.Redirect(w, r, PathAll, shared.FlashError, "Choose volunteer or admin.")
		return
	}
	view.Perform(h.pages, w, r, h.controller(r), view.Mutation{
		Action: listctl.Action{
			Kind:    listctl.ActionRole,
			Title:   "Confirm role change?",
			Message: fmt.Sprintf("This user will become %s.", role),
			Confirm: "Yes, change",
		},
		SubjectID: chi.URLParam(r, "id"),
		Payload: map[string]string{
			payloadRole:  string(role),
			payloadEmail: r.PostFormValue(payloadEmail),
		},
		Path:    PathAll,
		Success: "Role changed to " + role.Label() + ".",
	})
}
