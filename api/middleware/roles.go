package middleware

import (
	"net/http"
	"slices"

	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

// RequireRole admits only callers whose token role is one of allowed. Mount it
// after Auth, which puts the role on the context.
func RequireRole(allowed enums.Role, more ...enums.Role) func(http.Handler) http.Handler {
	roles := append([]enums.Role{allowed}, more...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(roles, enums.Role(RoleFromContext(r.Context()))) {
				next.ServeHTTP(w, r)
				return
			}
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeForbidden, "this route is limited to dealership staff"))
		})
	}
}

// LogDenied logs 403 responses produced further down the chain with the
// caller role attached.
func LogDenied(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == http.StatusForbidden {
				ctx := logg.WithFields(r.Context(), map[string]any{
					"role":   RoleFromContext(r.Context()),
					"method": r.Method,
					"path":   r.URL.Path,
				})
				logg.Warn(ctx, "admin.access_denied")
			}
		})
	}
}
