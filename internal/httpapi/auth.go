package httpapi

import (
	"context"
	"net/http"
	"strings"

	"campusq/internal/models"
	"campusq/internal/store"
)

type contextKey string

const userContextKey contextKey = "campusq.user"

func userFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

func isPublicEndpoint(path string) bool {
	switch {
	case path == "/healthz",
		path == "/auth/login",
		path == "/queue/join",
		path == "/queue/active",
		strings.HasPrefix(path, "/queue/ticket/"),
		strings.HasPrefix(path, "/display/"):
		return true
	}
	return false
}

// AuthMiddleware resolves the bearer session token for staff and admin
// endpoints and rejects admin paths for non-admin roles.
func AuthMiddleware(auth store.AuthStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		_, user, err := auth.GetSession(r.Context(), token)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/admin/") && user.Role != models.RoleAdmin {
			writeError(w, "", http.StatusForbidden, "access_denied", "admin role required")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
