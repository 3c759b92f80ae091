package controllers

import (
	"net/http"
	"strings"

	"github.com/dealerhub/showroom/api/middleware"
	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/api/validators"
	"github.com/dealerhub/showroom/internal/inquiries"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

// RequestCreate submits an inquiry. The Idempotency-Key header is mandatory
// and doubles as the row's unique key.
func RequestCreate(svc inquiries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body inquiries.CreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.Create(r.Context(), inquiries.CreateInput{
			UserID:         userID,
			Request:        body,
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{"request_id": created.ID.String(), "inquiry_type": created.InquiryType.String()})
			logg.Info(ctx, "inquiry.created")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func RequestListOwn(svc inquiries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 25, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListOwn(r.Context(), userID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// RequestUpdateOwn lets a shopper edit the message of, or cancel, a pending request.
func RequestUpdateOwn(svc inquiries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body inquiries.OwnerUpdate
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateOwn(r.Context(), userID, id, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func AdminRequestList(svc inquiries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 25, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters := inquiries.AdminListFilters{Cursor: r.URL.Query().Get("cursor"), Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseRequestStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filters.Status = &status
		}
		page, err := svc.AdminList(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminRequestSetStatus moves a request through the staff workflow.
func AdminRequestSetStatus(svc inquiries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body inquiries.StatusUpdate
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseRequestStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		updated, err := svc.SetStatus(r.Context(), id, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{"request_id": id.String(), "status": status.String()})
			logg.Info(ctx, "admin.request_status_set")
		}
		responses.WriteSuccess(w, updated)
	}
}
