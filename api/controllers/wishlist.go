package controllers

import (
	"net/http"

	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/api/validators"
	"github.com/dealerhub/showroom/internal/wishlist"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/google/uuid"
)

func WishlistList(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), userID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// WishlistAdd saves a vehicle. Saving an already saved vehicle returns the
// existing row.
func WishlistAdd(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body wishlist.AddItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vehicleID, err := uuid.Parse(body.VehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle_id"))
			return
		}
		item, err := svc.Add(r.Context(), userID, vehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func WishlistRemove(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Remove(r.Context(), userID, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
