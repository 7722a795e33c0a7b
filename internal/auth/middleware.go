package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/platform/httpx"
	"github.com/learnhub/console/internal/shared"
)

// IdentityLookup loads the staff identity for a resolved credential.
type IdentityLookup interface {
	Get(ctx context.Context, id int64) (permissions.Identity, error)
}

// Middleware authenticates API requests.
type Middleware struct {
	Service *Service
	Staff   IdentityLookup
	Logger  *slog.Logger
}

// Bearer resolves the Authorization header into an identity on the request context.
// Every request is resolved afresh so permission changes apply immediately.
func (m Middleware) Bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := bearerToken(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		staffID, err := m.Service.Resolve(r.Context(), secret)
		if err != nil {
			if !errors.Is(err, ErrTokenInvalid) {
				m.logger().Error("resolve bearer token", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		identity, err := m.Staff.Get(r.Context(), staffID)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown staff member")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), &identity)))
	})
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
