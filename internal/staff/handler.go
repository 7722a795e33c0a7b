package staff

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/platform/httpx"
	"github.com/learnhub/console/internal/rbac"
	"github.com/learnhub/console/internal/shared"
)

// Handler exposes the staff REST endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	rbac       rbac.Middleware
	writeLimit int
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, writeLimit: 30}
}

// WithWriteLimit caps permission updates per actor and minute.
func (h *Handler) WithWriteLimit(n int) *Handler {
	if n > 0 {
		h.writeLimit = n
	}
	return h
}

// MountRoutes registers the endpoints. Callers install bearer authentication first.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSuperuser())
		r.Get("/staff", h.list)
		r.With(httprate.Limit(h.writeLimit, time.Minute, httprate.WithKeyFuncs(actorKey))).
			Patch("/staff/{id}/permissions", h.updatePermissions)
	})
}

type updateResponse struct {
	Status string               `json:"status"`
	User   permissions.Identity `json:"user"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	httpx.JSON(w, http.StatusOK, identity)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if members == nil {
		members = []permissions.Identity{}
	}
	httpx.JSON(w, http.StatusOK, members)
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || targetID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid staff id")
		return
	}
	var body map[string]any
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	patch, err := ParsePatch(body)
	if err != nil {
		h.respondError(w, err)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	updated, err := h.service.UpdatePermissions(r.Context(), actor.ID, targetID, patch)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("staff permissions updated", slog.Int64("actor_id", actor.ID), slog.Int64("target_id", targetID))
	httpx.JSON(w, http.StatusOK, updateResponse{Status: "ok", User: updated})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if status, _ := httpx.StatusOf(err); status == http.StatusInternalServerError {
		h.logger.Error("staff handler", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorKey(r *http.Request) (string, error) {
	if identity := shared.IdentityFromContext(r.Context()); identity != nil {
		return "staff:" + strconv.FormatInt(identity.ID, 10), nil
	}
	return httprate.KeyByIP(r)
}
