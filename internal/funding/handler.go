package funding

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/view"
)

// Path is the funding page.
const Path = "/funding"

const viewHistory = "funding.history"

// historyScope is shared by every visitor; the history is the same for all.
const historyScope = "all"

var defaultQuery = listctl.Query{Page: listctl.DefaultPage, Limit: listctl.DefaultLimit}

// Handler serves the funding pages.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	source      *listctl.Source[Fund]
	registry    *listctl.Registry
	pages       *view.Pages
	validator   *validator.Validate
	awaitBudget time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, store listctl.Store, ttl time.Duration, registry *listctl.Registry, pages *view.Pages, awaitBudget time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		source: listctl.NewSource[Fund](listctl.SourceConfig{
			Resource: ResourceHistory,
			Store:    store,
			TTL:      ttl,
			Logger:   logger,
		}),
		registry:    registry,
		pages:       pages,
		validator:   shared.NewValidator(),
		awaitBudget: awaitBudget,
	}
}

// MountRoutes registers the funding routes. signedIn guards every page.
func (h *Handler) MountRoutes(r chi.Router, signedIn func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(signedIn)
		r.Get("/", h.showFunding)
		r.Post("/", h.give)
		r.Get("/success", h.showSuccess)
	})
}

type pageData struct {
	List      view.ListPage
	Items     []Fund
	PageTotal float64
	Amount    string
	Errors    map[string]string
	Donor     identity.Principal
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, amount string, errs map[string]string) {
	q := listctl.ParseQuery(r.URL.Query(), defaultQuery)
	ctrl := view.MountList(r, h.registry, view.ListSpec[Fund]{
		Name:   viewHistory,
		Source: h.source,
		Scope:  historyScope,
		Load:   h.service.Load(r.Context()),
		Query:  q,
	}, h.logger)
	snap := ctrl.Await(r.Context(), h.awaitBudget)
	if h.pages.Expired(w, r, snap.Err) {
		return
	}
	var total float64
	for _, f := range snap.Response.Items {
		total += f.Amount
	}
	donor, _ := identity.PrincipalFrom(r.Context())
	h.pages.Render(w, r, status, "pages/funding.html", "Funding", pageData{
		List:      view.NewListPage(Path, snap),
		Items:     snap.Response.Items,
		PageTotal: total,
		Amount:    amount,
		Errors:    errs,
		Donor:     donor,
	})
}

func (h *Handler) showFunding(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "", nil)
}

func (h *Handler) give(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.PostFormValue("amount"))
	var gift Gift
	errs := map[string]string{}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		errs["amount"] = "Enter an amount in taka."
	} else {
		gift.Amount = amount
		if verr := shared.ValidateStruct(h.validator, gift); verr != nil {
			errs = verr.Fields
		}
	}
	if len(errs) > 0 {
		if errs["amount"] != "" && err == nil {
			errs["amount"] = "Minimum amount is " + view.Taka(1) + "."
		}
		h.render(w, r, http.StatusUnprocessableEntity, raw, errs)
		return
	}

	donor, _ := identity.PrincipalFrom(r.Context())
	checkoutURL, err := h.service.StartCheckout(r.Context(), donor, gift.Amount)
	if err != nil {
		if shared.IsAuthExpired(err) {
			h.pages.Fail(w, r, err, Path)
			return
		}
		msg := shared.UserSafeMessage(err)
		if errors.Is(err, ErrNoCheckoutURL) {
			msg = "The payment page could not be opened. Please try again."
		}
		h.logger.Warn("checkout failed", slog.Any("error", err))
		h.render(w, r, http.StatusBadGateway, raw, map[string]string{"general": msg})
		return
	}
	http.Redirect(w, r, checkoutURL, http.StatusSeeOther)
}

type successData struct {
	Checkout Checkout
	Error    string
}

func (h *Handler) showSuccess(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		h.pages.Render(w, r, http.StatusBadRequest, "pages/funding_success.html", "Payment", successData{Error: "No session_id found in URL."})
		return
	}
	checkout, err := h.service.Checkout(r.Context(), id)
	if err != nil {
		if shared.IsAuthExpired(err) {
			h.pages.Fail(w, r, err, Path)
			return
		}
		h.pages.Render(w, r, http.StatusBadGateway, "pages/funding_success.html", "Payment", successData{Error: shared.UserSafeMessage(err)})
		return
	}
	if checkout.Paid() {
		if err := h.source.Invalidate(r.Context()); err != nil {
			h.logger.Warn("list cache invalidation failed", slog.String("resource", ResourceHistory), slog.Any("error", err))
		}
	}
	h.pages.Render(w, r, http.StatusOK, "pages/funding_success.html", "Payment", successData{Checkout: checkout})
}
