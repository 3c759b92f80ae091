package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/dealerhub/showroom/pkg/logger"
)

func TestRequestIDEchoesOrMints(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf, Format: "json"})
	var seen string
	handler := RequestID(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
		logg.Info(r.Context(), "probe")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "  lot-42  ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "lot-42", seen)
	require.Equal(t, "lot-42", rec.Header().Get(requestIDHeader))
	require.Contains(t, buf.String(), `"request_id":"lot-42"`)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("a", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Len(t, seen, 36)
	require.Equal(t, seen, rec.Header().Get(requestIDHeader))
}

func TestRecovererWritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf, Format: "json"})
	handler := Recoverer(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("trade-in appraisal missing")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wishlist", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, buf.String(), "http.panic_recovered")
	require.Contains(t, buf.String(), "/api/v1/wishlist")
	require.NotContains(t, rec.Body.String(), "appraisal")
}

func TestLogDeniedRecordsForbidden(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf, Format: "json"})
	handler := LogDenied(logg)(RequireRole(enums.RoleAdmin)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/requests", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithRole(req.Context(), "user")))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, buf.String(), "admin.access_denied")

	buf.Reset()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithRole(req.Context(), "admin")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, buf.String())
}
