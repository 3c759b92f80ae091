package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dealerhub/showroom/api/responses"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

// Recoverer turns a handler panic into a 500 error envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection as it expects.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := r.Context()
				err := fmt.Errorf("handler panic on %s %s: %v", r.Method, r.URL.Path, rec)
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"panic":  fmt.Sprint(rec),
						"method": r.Method,
						"path":   r.URL.Path,
						"stack":  string(debug.Stack()),
					})
					logg.Error(ctx, "http.panic_recovered", err)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected server error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
