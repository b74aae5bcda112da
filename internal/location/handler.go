package location

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bloodbridge/bloodbridge/internal/platform/httpx"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Handler serves the dataset to the browser-side cascade.
type Handler struct {
	loader *Loader
	logger *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(loader *Loader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{loader: loader, logger: logger}
}

// MountRoutes registers the location endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/districts", h.listDistricts)
	r.Get("/districts/{id}/upazilas", h.listUpazilas)
}

type districtView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listDistricts(w http.ResponseWriter, r *http.Request) {
	tree, err := h.loader.Load(r.Context())
	if err != nil {
		h.logger.Error("load locations", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "location data is not available")
		return
	}
	districts := tree.Districts()
	out := make([]districtView, 0, len(districts))
	for _, d := range districts {
		out = append(out, districtView{ID: d.ID, Name: d.Name})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listUpazilas(w http.ResponseWriter, r *http.Request) {
	tree, err := h.loader.Load(r.Context())
	if err != nil {
		h.logger.Error("load locations", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "location data is not available")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := tree.District(id); !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	httpx.JSON(w, http.StatusOK, map[string]any{"districtId": id, "upazilas": tree.Upazilas(id)})
}
