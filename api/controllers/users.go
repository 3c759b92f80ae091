package controllers

import (
	"net/http"

	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/api/validators"
	"github.com/dealerhub/showroom/internal/users"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

type updateMetadataRequest struct {
	Metadata map[string]any `json:"metadata" validate:"required"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// CurrentUser returns the authenticated user's profile.
func CurrentUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// UpdateCurrentUser merges a metadata patch into the caller's profile.
func UpdateCurrentUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateMetadataRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.UpdateMetadata(r.Context(), userID, body.Metadata)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

func AdminListUsers(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 25, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), users.ListFilters{
			Email:  validators.SanitizeString(r.URL.Query().Get("email"), 254),
			Cursor: r.URL.Query().Get("cursor"),
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminSetUserRole(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body setRoleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParseRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}
		user, err := svc.SetRole(r.Context(), userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{"target_user_id": userID.String(), "role": role.String()})
			logg.Info(ctx, "admin.user_role_set")
		}
		responses.WriteSuccess(w, user)
	}
}
