package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/platform/httpx"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/internal/view"
)

// Binding ties a request to the browsing context it was issued from.
type Binding struct {
	ContextID string
	Screen    *Screen
	Page      view.Page
}

// Resolver finds the browsing context of a request. When ok is false the resolver has
// already written the response.
type Resolver interface {
	ResolveScreen(w http.ResponseWriter, r *http.Request) (binding Binding, ok bool)
}

// Handler serves the access control screen of the dashboard.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	resolver  Resolver
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, resolver Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	_ = v.RegisterValidation("capability", func(fl validator.FieldLevel) bool {
		_, ok := permissions.ParseCapability(fl.Field().String())
		return ok
	})
	return &Handler{logger: logger, templates: templates, csrf: csrf, resolver: resolver, validator: v}
}

// MountRoutes registers the screen routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showScreen)
	r.Post("/{id}/toggle", h.toggle)
}

type toggleForm struct {
	Capability string `validate:"required,capability"`
}

type screenData struct {
	Capabilities []permissions.Capability
	Rows         []Row
	Error        string
}

func (h *Handler) showScreen(w http.ResponseWriter, r *http.Request) {
	binding, ok := h.resolver.ResolveScreen(w, r)
	if !ok {
		return
	}
	status := http.StatusOK
	data := screenData{Capabilities: permissions.All()}
	if err := binding.Screen.Load(r.Context()); err != nil {
		h.logger.Error("rbac load screen", slog.Any("error", err))
		data.Error = "Could not load staff permissions"
		status = http.StatusBadGateway
	}
	data.Rows = binding.Screen.Rows()
	h.render(w, r, binding, data, status)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || targetID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid staff id")
		return
	}
	form := toggleForm{Capability: r.PostFormValue("capability")}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	binding, ok := h.resolver.ResolveScreen(w, r)
	if !ok {
		return
	}
	if !binding.Screen.Loaded() {
		if err := binding.Screen.Load(r.Context()); err != nil {
			httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "could not load staff permissions")
			return
		}
	}

	capability, _ := permissions.ParseCapability(form.Capability)
	err = binding.Screen.TogglePermission(r.Context(), targetID, capability)
	switch {
	case errors.Is(err, ErrUnknownStaff):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	case errors.Is(err, ErrRowBusy):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		return
	case IsClientError(err):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
		return
	case err != nil:
		// the failure toast is already queued for this context
		h.logger.Warn("rbac toggle", slog.Int64("staff_id", targetID), slog.Any("error", err))
	}
	http.Redirect(w, r, "/rbac?ctx="+url.QueryEscape(binding.ContextID), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, binding Binding, data screenData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Access Control",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Page:        binding.Page,
		Data:        data,
	}
	if err := h.templates.Render(w, status, "pages/rbac.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
