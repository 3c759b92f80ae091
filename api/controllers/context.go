package controllers

import (
	"net/http"

	"github.com/dealerhub/showroom/api/middleware"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/google/uuid"
)

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
