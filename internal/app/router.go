package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bloodbridge/bloodbridge/internal/auth"
	"github.com/bloodbridge/bloodbridge/internal/dashboard"
	"github.com/bloodbridge/bloodbridge/internal/donations"
	"github.com/bloodbridge/bloodbridge/internal/funding"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/observability"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/users"
	"github.com/bloodbridge/bloodbridge/internal/view"
	"github.com/bloodbridge/bloodbridge/jobs"
	"github.com/bloodbridge/bloodbridge/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pages            *view.Pages
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Identity         *identity.Manager
	RBACMiddleware   rbac.Middleware
	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	DonationsHandler *donations.Handler
	FundingHandler   *funding.Handler
	DashboardHandler *dashboard.Handler
	LocationHandler  *location.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with BloodBridge defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Identity:       params.Identity,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		params.Pages.Render(w, r, http.StatusOK, "pages/home.html", "", nil)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route(donations.PathPublic, func(r chi.Router) {
		params.DonationsHandler.MountPublic(r, params.Identity.RequireSignedIn)
	})
	r.Route("/dashboard", func(r chi.Router) {
		params.DashboardHandler.MountRoutes(r, params.RBACMiddleware)
		params.AuthHandler.MountProfile(r, params.RBACMiddleware)
		params.DonationsHandler.MountDashboard(r, params.RBACMiddleware)
		params.UsersHandler.MountRoutes(r, params.RBACMiddleware)
	})
	r.Route(funding.Path, func(r chi.Router) {
		params.FundingHandler.MountRoutes(r, params.Identity.RequireSignedIn)
	})
	if params.LocationHandler != nil {
		r.Route("/locations", params.LocationHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.NotFound(params.Pages.NotFound)

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
