package rbac

import (
	"log/slog"
	"net/http"

	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/platform/httpx"
	"github.com/learnhub/console/internal/shared"
)

// Middleware guards backend routes with the identity resolved from the bearer credential.
type Middleware struct {
	Logger *slog.Logger
}

// Require ensures the caller holds capability. Superusers always pass.
func (m Middleware) Require(capability permissions.Capability) func(http.Handler) http.Handler {
	return m.guard(string(capability), func(identity *permissions.Identity) bool {
		return permissions.HasPermission(identity, capability)
	})
}

// RequireSuperuser ensures the caller is a superuser.
func (m Middleware) RequireSuperuser() func(http.Handler) http.Handler {
	return m.guard("superuser", func(identity *permissions.Identity) bool {
		return identity.IsSuperuser
	})
}

func (m Middleware) guard(name string, allow func(*permissions.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !allow(identity) {
				if m.Logger != nil {
					m.Logger.Info("rbac deny", slog.String("requirement", name), slog.Int64("staff_id", identity.ID))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing "+name)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
