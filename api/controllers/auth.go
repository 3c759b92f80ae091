package controllers

import (
	"net/http"

	"github.com/dealerhub/showroom/api/middleware"
	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/api/validators"
	"github.com/dealerhub/showroom/internal/auth"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

// AuthSignup creates an account and starts a session.
func AuthSignup(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.SignupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Signup(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithUserID(r.Context(), result.User.ID.String()), "auth.signup")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AuthLogout revokes the refresh session tied to the presented access token.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessID := middleware.AccessIDFromContext(r.Context())
		if accessID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
			return
		}
		if err := svc.Logout(r.Context(), accessID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AuthRefresh rotates the refresh token and mints a new access token from
// the current user record.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.RefreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Refresh(r.Context(), userID, middleware.AccessIDFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
