package donations

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/view"
)

// Route paths.
const (
	PathPublic = "/donation-requests"
	PathMine   = "/dashboard/my-donation-requests"
	PathAll    = "/dashboard/all-blood-donation-request"
	PathCreate = "/dashboard/create-donation-request"
)

// Handler wires HTTP endpoints for donation requests.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	lists       *Lists
	pages       *view.Pages
	locations   *location.Loader
	validator   *validator.Validate
	awaitBudget time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, lists *Lists, pages *view.Pages, locations *location.Loader, awaitBudget time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		lists:       lists,
		pages:       pages,
		locations:   locations,
		validator:   shared.NewValidator(),
		awaitBudget: awaitBudget,
	}
}

// MountPublic registers the public request pages. signedIn guards the
// pages that need an account.
func (h *Handler) MountPublic(r chi.Router, signedIn func(http.Handler) http.Handler) {
	r.Get("/", h.listPublic)
	r.Group(func(r chi.Router) {
		r.Use(signedIn)
		r.Get("/{id}", h.showDetails)
		r.Post("/{id}/donate", h.donate)
	})
}

// MountDashboard registers the dashboard pages for requesters and staff.
func (h *Handler) MountDashboard(r chi.Router, guard rbac.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireRole(rbac.RoleDonor))
		r.Get("/my-donation-requests", h.listMine)
		r.Post("/my-donation-requests/{id}/delete", h.deleteMine)
		r.Post("/my-donation-requests/{id}/status", h.closeMine)
		r.Get("/create-donation-request", h.showCreate)
		r.Post("/create-donation-request", h.handleCreate)
		r.Get("/donation-requests/{id}/edit", h.showEdit)
		r.Post("/donation-requests/{id}/edit", h.handleEdit)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireRole(rbac.RoleAdmin, rbac.RoleVolunteer))
		r.Get("/all-blood-donation-request", h.listAll)
		r.Get("/all-blood-donation-request/export.xlsx", h.exportAll)
		r.Post("/all-blood-donation-request/{id}/status", h.changeStatus)
	})
}

type listPageData struct {
	List        view.ListPage
	Items       []Request
	Statuses    []api.Status
	BloodGroups []string
	Status      string
	BloodGroup  string
	Search      string
	Return      string
	Role        rbac.Role
}

func newListPageData(path string, snap listctl.Snapshot[Request]) listPageData {
	return listPageData{
		List:       view.NewListPage(path, snap),
		Items:      snap.Response.Items,
		Status:     snap.Query.Filter(FilterStatus),
		BloodGroup: snap.Query.Filter(FilterBloodGroup),
		Search:     snap.Query.Search,
		Return:     snap.Query.URL(path),
	}
}

func (h *Handler) publicSpec(q listctl.Query) mountSpec {
	return mountSpec{
		Name:   viewPublic,
		Source: h.lists.Public,
		Scope:  publicScope,
		Load:   h.service.LoadPublic(),
		Query:  q,
	}
}

func (h *Handler) mineSpec(r *http.Request, name string, q listctl.Query) mountSpec {
	email := principalEmail(r)
	return mountSpec{
		Name:    name,
		Source:  h.lists.Mine,
		Scope:   email,
		Load:    h.service.LoadMine(r.Context(), email),
		Mutator: h.service.OwnerMutator(email),
		Query:   q,
	}
}

func (h *Handler) allSpec(r *http.Request, q listctl.Query) mountSpec {
	email := principalEmail(r)
	return mountSpec{
		Name:    viewAll,
		Source:  h.lists.All,
		Scope:   email,
		Load:    h.service.LoadAll(r.Context()),
		Mutator: h.service.StaffMutator(email),
		Query:   q,
	}
}

var (
	defaultQuery = listctl.Query{Page: listctl.DefaultPage, Limit: listctl.DefaultLimit}
	latestQuery  = listctl.Query{Page: listctl.DefaultPage, Limit: LatestLimit}
)

func (h *Handler) listPublic(w http.ResponseWriter, r *http.Request) {
	q := listctl.ParseQuery(r.URL.Query(), defaultQuery)
	snap := h.lists.once(r, h.publicSpec(q), h.awaitBudget)
	if h.pages.Expired(w, r, snap.Err) {
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/requests_public.html", "Donation requests", newListPageData(PathPublic, snap))
}

type detailsPageData struct {
	Request   Request
	CanPledge bool
	Donor     identity.Principal
}

func (h *Handler) showDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := h.service.Details(r.Context(), id)
	if err != nil {
		if api.IsNotFound(err) {
			h.pages.NotFound(w, r)
			return
		}
		h.pages.Fail(w, r, err, PathPublic)
		return
	}
	donor, _ := identity.PrincipalFrom(r.Context())
	h.pages.Render(w, r, http.StatusOK, "pages/request_details.html", "Request details", detailsPageData{
		Request:   req,
		CanPledge: req.Pledgeable() && !req.OwnedBy(donor.Email),
		Donor:     donor,
	})
}

var pledgeAction = listctl.Action{
	Kind:    listctl.ActionStatus,
	Title:   "Donate to this request?",
	Message: "Your name and email will be shared with the requester and the request moves to in progress.",
	Confirm: "Yes, I will donate",
}

func (h *Handler) donate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := PathPublic + "/" + id
	switch listctl.ParseDecision(r.PostFormValue(listctl.ConfirmField)) {
	case listctl.DecisionPending:
		h.pages.Confirm(w, r, view.ConfirmPage{
			Prompt: listctl.Prompt{Action: pledgeAction, SubjectID: id},
			Action: r.URL.Path,
			Back:   back,
		})
		return
	case listctl.DecisionCancel:
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	donor, _ := identity.PrincipalFrom(r.Context())
	req, err := h.service.Details(r.Context(), id)
	if err != nil {
		h.pages.Fail(w, r, err, PathPublic)
		return
	}
	if !req.Pledgeable() {
		h.pages.Redirect(w, r, back, shared.FlashError, "This request is no longer pending.")
		return
	}
	if req.OwnedBy(donor.Email) {
		h.pages.Redirect(w, r, back, shared.FlashError, "You cannot donate to your own request.")
		return
	}
	if err := h.service.Pledge(r.Context(), id, donor); err != nil {
		h.pages.Fail(w, r, err, back)
		return
	}
	h.lists.Invalidate(r, nil)
	h.pages.Redirect(w, r, back, shared.FlashSuccess, "Thank you! The requester has been notified that you will donate.")
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	q := listctl.ParseQuery(r.URL.Query(), defaultQuery, FilterStatus)
	ctrl := h.lists.mount(r, h.mineSpec(r, viewMine, q))
	snap := ctrl.Await(r.Context(), h.awaitBudget)
	if h.pages.Expired(w, r, snap.Err) {
		return
	}
	data := newListPageData(PathMine, snap)
	data.Statuses = api.Statuses
	h.pages.Render(w, r, http.StatusOK, "pages/my_requests.html", "My donation requests", data)
}

// Latest returns the signed-in donor's most recent requests for the
// dashboard home. The error is the fetch failure also shown in the page.
func (h *Handler) Latest(r *http.Request) (view.ListPage, []Request, error) {
	ctrl := h.lists.mount(r, h.mineSpec(r, viewLatest, latestQuery))
	snap := ctrl.Await(r.Context(), h.awaitBudget)
	return view.NewListPage("/dashboard", snap), snap.Response.Items, snap.Err
}

// ownerController picks the view a requester's action was posted from.
func (h *Handler) ownerController(r *http.Request) (*listctl.Controller[Request], string) {
	if r.PostFormValue("from") == "dashboard" {
		return h.lists.lookup(r, h.mineSpec(r, viewLatest, latestQuery)), "/dashboard"
	}
	q := view.ReturnQuery(r, defaultQuery, FilterStatus)
	return h.lists.lookup(r, h.mineSpec(r, viewMine, q)), PathMine
}

func (h *Handler) deleteMine(w http.ResponseWriter, r *http.Request) {
	ctrl, path := h.ownerController(r)
	view.Perform(h.pages, w, r, ctrl, view.Mutation{
		Action: listctl.Action{
			Kind:    listctl.ActionDelete,
			Title:   "Delete this request?",
			Message: "This action cannot be undone.",
			Confirm: "Yes, delete",
			Danger:  true,
		},
		SubjectID: chi.URLParam(r, "id"),
		Path:      path,
		Success:   "Request deleted.",
		Applied:   func(r *http.Request) { h.lists.Invalidate(r, h.lists.Mine) },
	})
}

func (h *Handler) closeMine(w http.ResponseWriter, r *http.Request) {
	status, ok := api.ParseStatus(r.PostFormValue("status"))
	if !ok || !allowedOwnerStatus(status) {
		h.pages.Redirect(w, r, PathMine, shared.FlashError, "Choose done or canceled.")
		return
	}
	ctrl, path := h.ownerController(r)
	view.Perform(h.pages, w, r, ctrl, view.Mutation{
		Action: listctl.Action{
			Kind:    listctl.ActionStatus,
			Title:   fmt.Sprintf("Set status to %q?", status.Label()),
			Message: "The donor and requester will see the new status.",
			Confirm: "Yes, update",
			Danger:  status == api.StatusCanceled,
		},
		SubjectID: chi.URLParam(r, "id"),
		Payload:   map[string]string{string(listctl.ActionStatus): string(status)},
		Path:      path,
		Success:   "Status updated to " + status.Label() + ".",
		Applied:   func(r *http.Request) { h.lists.Invalidate(r, h.lists.Mine) },
	})
}

type formPageData struct {
	Draft       Draft
	Errors      map[string]string
	Location    view.LocationFields
	BloodGroups []string
	Editing     bool
	Action      string
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, d Draft, errs map[string]string, editing bool) {
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, "/dashboard")
		return
	}
	title := "Create donation request"
	if editing {
		title = "Edit donation request"
	}
	h.pages.Render(w, r, status, "pages/request_form.html", title, formPageData{
		Draft:       d,
		Errors:      errs,
		Location:    view.NewLocationFields(tree, d.DistrictID, d.Upazila, errs),
		BloodGroups: api.BloodGroups,
		Editing:     editing,
		Action:      r.URL.Path,
	})
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.PrincipalFrom(r.Context())
	h.renderForm(w, r, http.StatusOK, Draft{RequesterName: p.DisplayName(), RequesterEmail: p.Email}, nil, false)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, PathMine)
		return
	}
	p, _ := identity.PrincipalFrom(r.Context())
	draft, verr := ParseDraft(r, h.validator, tree, p)
	if verr != nil {
		h.renderForm(w, r, http.StatusUnprocessableEntity, draft, verr.Fields, false)
		return
	}
	if _, err := h.service.Create(r.Context(), p.Email, draft); err != nil {
		if shared.IsAuthExpired(err) {
			h.pages.Fail(w, r, err, PathCreate)
			return
		}
		h.renderForm(w, r, http.StatusBadGateway, draft, map[string]string{"general": shared.UserSafeMessage(err)}, false)
		return
	}
	h.lists.Invalidate(r, nil)
	h.pages.Redirect(w, r, PathMine, shared.FlashSuccess, "Your donation request has been submitted (pending).")
}

// ownedRequest loads a request the signed-in donor may edit.
func (h *Handler) ownedRequest(r *http.Request) (Request, error) {
	req, err := h.service.Details(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return Request{}, err
	}
	if !req.OwnedBy(principalEmail(r)) {
		return Request{}, shared.ErrForbidden
	}
	if !req.Editable() {
		return Request{}, &shared.MutationError{Op: "edit", Status: http.StatusConflict, Message: "Only pending requests can be edited."}
	}
	return req, nil
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	req, err := h.ownedRequest(r)
	if err != nil {
		h.failEdit(w, r, err)
		return
	}
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, PathMine)
		return
	}
	h.renderForm(w, r, http.StatusOK, DraftFrom(req, tree), nil, true)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	req, err := h.ownedRequest(r)
	if err != nil {
		h.failEdit(w, r, err)
		return
	}
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, PathMine)
		return
	}
	p, _ := identity.PrincipalFrom(r.Context())
	draft, verr := ParseDraft(r, h.validator, tree, p)
	if verr != nil {
		h.renderForm(w, r, http.StatusUnprocessableEntity, draft, verr.Fields, true)
		return
	}
	if err := h.service.Update(r.Context(), p.Email, req.ID, draft); err != nil {
		if shared.IsAuthExpired(err) {
			h.pages.Fail(w, r, err, PathMine)
			return
		}
		h.renderForm(w, r, http.StatusBadGateway, draft, map[string]string{"general": shared.UserSafeMessage(err)}, true)
		return
	}
	h.lists.Invalidate(r, nil)
	h.pages.Redirect(w, r, PathMine, shared.FlashSuccess, "Request updated.")
}

func (h *Handler) failEdit(w http.ResponseWriter, r *http.Request, err error) {
	if api.IsNotFound(err) {
		h.pages.NotFound(w, r)
		return
	}
	if errors.Is(err, shared.ErrForbidden) {
		h.pages.Redirect(w, r, PathMine, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	h.pages.Fail(w, r, err, PathMine)
}

var staffFilters = []string{FilterStatus, FilterBloodGroup}

func (h *Handler) allSnapshot(r *http.Request) listctl.Snapshot[Request] {
	q := listctl.ParseQuery(r.URL.Query(), defaultQuery, staffFilters...)
	ctrl := h.lists.mount(r, h.allSpec(r, q))
	return ctrl.Await(r.Context(), h.awaitBudget)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	snap := h.allSnapshot(r)
	if h.pages.Expired(w, r, snap.Err) {
		return
	}
	data := newListPageData(PathAll, snap)
	data.Statuses = api.Statuses
	data.BloodGroups = api.BloodGroups
	data.Role, _ = rbac.RoleFrom(r.Context())
	h.pages.Render(w, r, http.StatusOK, "pages/all_requests.html", "All donation requests", data)
}

func (h *Handler) exportAll(w http.ResponseWriter, r *http.Request) {
	snap := h.allSnapshot(r)
	if snap.Err != nil {
		h.pages.Fail(w, r, snap.Err, PathAll)
		return
	}
	if !snap.HasData {
		h.pages.Redirect(w, r, snap.Query.URL(PathAll), shared.FlashInfo, "The list is still loading. Try the export again in a moment.")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=donation-requests-%s-p%d.xlsx", time.Now().Format("2006-01-02"), snap.Query.Page))
	if err := WriteXLSX(w, snap.Response.Items); err != nil {
		h.logger.Error("export donation requests", slog.Any("error", err))
	}
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := api.ParseStatus(r.PostFormValue("status"))
	if !ok {
		h.pages.Redirect(w, r, PathAll, shared.FlashError, "Choose a valid status.")
		return
	}
	q := view.ReturnQuery(r, defaultQuery, staffFilters...)
	ctrl := h.lists.lookup(r, h.allSpec(r, q))
	view.Perform(h.pages, w, r, ctrl, view.Mutation{
		Action: listctl.Action{
			Kind:    listctl.ActionStatus,
			Title:   fmt.Sprintf("Change status to %q?", status.Label()),
			Message: "The requester will see the new status.",
			Confirm: "Yes, change",
		},
		SubjectID: chi.URLParam(r, "id"),
		Payload:   map[string]string{string(listctl.ActionStatus): string(status)},
		Path:      PathAll,
		Success:   "Status updated to " + status.Label() + ".",
		Applied:   func(r *http.Request) { h.lists.Invalidate(r, h.lists.All) },
	})
}
