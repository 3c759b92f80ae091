package middleware

import (
	"context"
	"net/http"

	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/api/validators"
	pkgAuth "github.com/dealerhub/showroom/pkg/auth"
	"github.com/dealerhub/showroom/pkg/auth/session"
	"github.com/dealerhub/showroom/pkg/config"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
// A token is only accepted while its refresh session still exists.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, verifier, logg, pkgAuth.ParseAccessToken)
}

// AuthAllowExpired is Auth for the refresh endpoint: the signature must be
// valid but the token may be past its expiry.
func AuthAllowExpired(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, nil, logg, pkgAuth.ParseAccessTokenAllowExpired)
}

type tokenParser func(config.JWTConfig, string) (*pkgAuth.AccessTokenClaims, error)

func authenticate(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger, parse tokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := validators.BearerToken(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := parse(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID.String())
			ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
			ctx = context.WithValue(ctx, ctxAccessID, claims.ID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
