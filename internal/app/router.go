package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/learnhub/console/internal/auth"
	"github.com/learnhub/console/internal/dashboard"
	"github.com/learnhub/console/internal/observability"
	"github.com/learnhub/console/internal/platform/httpx"
	"github.com/learnhub/console/internal/rbac"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/internal/staff"
	"github.com/learnhub/console/internal/view"
	"github.com/learnhub/console/jobs"
	"github.com/learnhub/console/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	BearerMiddleware auth.Middleware
	StaffHandler     *staff.Handler
	DashboardHandler *dashboard.Handler
	RBACHandler      *rbac.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version()})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.StaffHandler != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(params.BearerMiddleware.Bearer)
			params.StaffHandler.MountRoutes(r)
		})
	}
	if params.DashboardHandler != nil {
		params.DashboardHandler.MountRoutes(r)
	}
	if params.RBACHandler != nil {
		r.Route("/rbac", params.RBACHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(web.Static())))
	r.Handle("/static/*", staticCacheHandler(fileServer))

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
