package controllers

import (
	"net/http"
	"strings"

	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/api/validators"
	"github.com/dealerhub/showroom/internal/vehicles"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

// VehicleList serves the public catalog with make, max_price and condition filters.
func VehicleList(svc vehicles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		maxPrice, err := validators.ParseQueryDecimal(r, "max_price")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters := vehicles.ListFilters{
			Make:     validators.SanitizeString(query.Get("make"), 80),
			MaxPrice: maxPrice,
			Cursor:   query.Get("cursor"),
			Limit:    limit,
		}
		if raw := strings.TrimSpace(query.Get("condition")); raw != "" {
			condition, err := enums.ParseVehicleCondition(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid condition"))
				return
			}
			filters.Condition = &condition
		}

		page, err := svc.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func VehicleGet(svc vehicles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "vehicleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vehicle, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, vehicle)
	}
}
