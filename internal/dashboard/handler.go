package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/platform/httpx"
	"github.com/learnhub/console/internal/rbac"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/internal/view"
)

const (
	// ContextParam carries the browsing context in queries and forms.
	ContextParam = "ctx"
	// ContextHeader carries the browsing context on script requests.
	ContextHeader = "X-Browsing-Context"
)

// Handler serves the dashboard pages and the live endpoints of each browsing context.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	factory   *Factory
	registry  *Registry
	catalog   []permissions.Destination
	heartbeat time.Duration
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, factory *Factory, registry *Registry) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := factory.Catalog
	if catalog == nil {
		catalog = permissions.Catalog()
	}
	return &Handler{
		logger:    logger,
		templates: templates,
		csrf:      csrf,
		factory:   factory,
		registry:  registry,
		catalog:   catalog,
		heartbeat: 25 * time.Second,
	}
}

// MountRoutes registers the dashboard routes. The access control screen is mounted
// separately by the rbac handler and resolves its context through ResolveScreen.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	for _, d := range h.catalog {
		if d.Path == "/" || d.SuperuserOnly {
			continue
		}
		r.Get(d.Path, h.feature(d))
	}
	r.Route("/live/{ctx}", func(r chi.Router) {
		r.Get("/", h.stream)
		r.Post("/refresh", h.refresh)
		r.Post("/toasts/{id}/dismiss", h.dismiss)
	})
}

// ContextID extracts the browsing context of r.
func ContextID(r *http.Request) string {
	if id := r.URL.Query().Get(ContextParam); id != "" {
		return id
	}
	if id := r.Header.Get(ContextHeader); id != "" {
		return id
	}
	if r.Method == http.MethodPost {
		return r.PostFormValue(ContextParam)
	}
	return ""
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mountFor(w, r)
	if !ok {
		return
	}
	h.render(w, r, m, "pages/home.html", "Dashboard", nil, http.StatusOK)
}

func (h *Handler) feature(d permissions.Destination) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := h.mountFor(w, r)
		if !ok {
			return
		}
		if !m.Surface.Allowed(r.URL.Path) {
			h.forbidden(w, r, m)
			return
		}
		h.render(w, r, m, "pages/feature.html", d.Label, d, http.StatusOK)
	}
}

// ResolveScreen binds an access control request to its browsing context. Only superusers
// get through; everyone else sees the forbidden page.
func (h *Handler) ResolveScreen(w http.ResponseWriter, r *http.Request) (rbac.Binding, bool) {
	m, ok := h.mountFor(w, r)
	if !ok {
		return rbac.Binding{}, false
	}
	if !m.Surface.Allowed(r.URL.Path) {
		h.forbidden(w, r, m)
		return rbac.Binding{}, false
	}
	return rbac.Binding{ContextID: m.ID(), Screen: m.Screen(), Page: h.page(m, r.URL.Path)}, true
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveMount(w, r)
	if !ok {
		return
	}
	m.Signal.Dispatch()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dismiss(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveMount(w, r)
	if !ok {
		return
	}
	m.Toasts.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// mountFor finds the context of a page request, mounting a new one for GET requests that
// carry no usable context.
func (h *Handler) mountFor(w http.ResponseWriter, r *http.Request) (*Mount, bool) {
	sess := shared.SessionFromContext(r.Context())
	token := sess.Token()
	if token == "" {
		if r.Method == http.MethodGet {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		} else {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		}
		return nil, false
	}

	if m, ok := h.registry.Get(ContextID(r)); ok && m.SessionID() == sess.ID {
		return m, true
	}
	if r.Method != http.MethodGet {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown browsing context")
		return nil, false
	}

	m, err := h.factory.Open(r.Context(), sess.ID, token)
	if err != nil {
		h.logger.Error("dashboard: mount", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	h.registry.Add(m)

	target := *r.URL
	query := target.Query()
	query.Set(ContextParam, m.ID())
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.RequestURI(), http.StatusFound)
	return nil, false
}

// liveMount finds the context named in the URL; it never mounts.
func (h *Handler) liveMount(w http.ResponseWriter, r *http.Request) (*Mount, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess.Token() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return nil, false
	}
	m, ok := h.registry.Get(chi.URLParam(r, "ctx"))
	if !ok || m.SessionID() != sess.ID {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown browsing context")
		return nil, false
	}
	return m, true
}

func (h *Handler) page(m *Mount, path string) view.Page {
	return view.Page{ContextID: m.ID(), User: m.Store.Identity(), Menu: m.Surface.Entries(path)}
}

func (h *Handler) forbidden(w http.ResponseWriter, r *http.Request, m *Mount) {
	h.render(w, r, m, "pages/forbidden.html", "Not available", nil, http.StatusForbidden)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, m *Mount, name, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Page:        h.page(m, r.URL.Path),
		Data:        data,
	}
	if err := h.templates.Render(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
