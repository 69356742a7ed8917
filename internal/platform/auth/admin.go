package auth

import (
	"net/http"
	"strings"

	"github.com/example/checkpoint-player/internal/platform/api"
	"github.com/example/checkpoint-player/internal/platform/httpserver"
)

// RequireAdmin allows the request only if RequireUser already injected
// role=admin into the context. It guards the operator endpoints.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		if strings.ToLower(strings.TrimSpace(role)) != "admin" {
			api.Forbidden(w, "ADMIN_REQUIRED", "Admin role required", httpserver.RequestIDFromContext(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
