package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeConflict, status: http.StatusConflict},
		{code: CodeIdempotency, status: http.StatusConflict, detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s missing public message", tt.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestCodeForStatusRoundTrips(t *testing.T) {
	for _, code := range []Code{CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeRateLimit, CodeDependency, CodeInternal} {
		if got := CodeForStatus(MetadataFor(code).HTTPStatus); got != code {
			t.Fatalf("status for %s mapped back to %s", code, got)
		}
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict || wrapped.Message() != "ctx" {
		t.Fatalf("unexpected wrapped error %v", wrapped)
	}
	if Wrap(CodeInternal, nil, "x").Unwrap() != nil {
		t.Fatalf("nil cause should produce a bare error")
	}
}

func TestIsCodeWalksTypedChain(t *testing.T) {
	inner := New(CodeUnauthorized, "expired")
	outer := Wrap(CodeDependency, fmt.Errorf("call: %w", inner), "Failed to add to wishlist")

	if !IsCode(outer, CodeDependency) || !IsCode(outer, CodeUnauthorized) {
		t.Fatalf("expected both codes in chain")
	}
	if IsCode(outer, CodeNotFound) {
		t.Fatalf("unexpected code match")
	}
	if CodeOf(outer) != CodeDependency {
		t.Fatalf("CodeOf should return outermost code")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "wishlist_items_user_vehicle_key", TableName: "wishlist_items"}
	err := Wrap(CodeConflict, pgErr, "insert wishlist item")

	d := Dump(err)
	if d.Code != CodeConflict || d.PGCode != "23505" || d.PGTable != "wishlist_items" {
		t.Fatalf("unexpected dump %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain links, got %v", d.Chain)
	}
}
