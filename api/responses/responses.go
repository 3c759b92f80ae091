package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/types"
)

// callerFacing lists the codes whose own message is safe to show a shopper.
// Every other code answers with its generic public message.
var callerFacing = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeForbidden:     true,
	pkgerrors.CodeUnauthorized:  true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeConflict:      true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeIdempotency:   true,
	pkgerrors.CodeRateLimit:     true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteNoContent answers 204 without a body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError renders err as the error envelope and logs it: 5xx at error
// level with the cause chain, 4xx as a warning.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("nil error written to response")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if callerFacing[typed.Code()] && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, dumpFields(pkgerrors.Dump(err)))
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.failed", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

// dumpFields flattens an error dump into log fields, leaving out the postgres
// columns when the cause did not come from the database.
func dumpFields(dump pkgerrors.ErrorDump) map[string]any {
	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
	}
	if dump.PGCode == "" {
		return fields
	}
	fields["pg_code"] = dump.PGCode
	fields["pg_message"] = dump.PGMessage
	for key, value := range map[string]string{
		"pg_detail":     dump.PGDetail,
		"pg_table":      dump.PGTable,
		"pg_column":     dump.PGColumn,
		"pg_constraint": dump.PGConstraint,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"response encoding failed"}}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
