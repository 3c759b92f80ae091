package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/types"
)

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, types.NewPage[string](nil, ""))

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"data":{"items":[]}}`, w.Body.String())
}

func TestWriteErrorEnvelope(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		status      int
		code        pkgerrors.Code
		message     string
		wantDetails bool
	}{
		{
			name:        "validation keeps message and details",
			err:         pkgerrors.New(pkgerrors.CodeValidation, "vehicle_id is required").WithDetails(map[string]string{"vehicle_id": "is required"}),
			status:      http.StatusBadRequest,
			code:        pkgerrors.CodeValidation,
			message:     "vehicle_id is required",
			wantDetails: true,
		},
		{
			name:    "state conflict keeps message",
			err:     pkgerrors.New(pkgerrors.CodeStateConflict, "request already closed"),
			status:  pkgerrors.MetadataFor(pkgerrors.CodeStateConflict).HTTPStatus,
			code:    pkgerrors.CodeStateConflict,
			message: "request already closed",
		},
		{
			name:    "untyped error is internal",
			err:     errors.New("dial tcp 10.0.0.5:5432: refused"),
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage,
		},
		{
			name:    "dependency hides its cause",
			err:     pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("redis timeout"), "idempotency store"),
			status:  pkgerrors.MetadataFor(pkgerrors.CodeDependency).HTTPStatus,
			code:    pkgerrors.CodeDependency,
			message: pkgerrors.MetadataFor(pkgerrors.CodeDependency).PublicMessage,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), logger.Nop(), w, tc.err)
			require.Equal(t, tc.status, w.Code)

			var body types.ErrorEnvelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			require.Equal(t, string(tc.code), body.Error.Code)
			require.Equal(t, tc.message, body.Error.Message)
			if tc.wantDetails {
				require.NotNil(t, body.Error.Details)
			}
			if tc.code == pkgerrors.CodeInternal {
				require.Nil(t, body.Error.Details)
			}
		})
	}
}

func TestWriteErrorNilError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDumpFieldsOmitsEmptyPostgresColumns(t *testing.T) {
	fields := dumpFields(pkgerrors.ErrorDump{TopMessage: "boom", Code: pkgerrors.CodeInternal})
	require.NotContains(t, fields, "pg_code")

	fields = dumpFields(pkgerrors.ErrorDump{TopMessage: "dup", PGCode: "23505", PGConstraint: "custom_requests_idempotency_key"})
	require.Equal(t, "23505", fields["pg_code"])
	require.Equal(t, "custom_requests_idempotency_key", fields["pg_constraint"])
	require.NotContains(t, fields, "pg_table")
}
