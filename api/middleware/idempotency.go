package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dealerhub/showroom/api/responses"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	pkgredis "github.com/dealerhub/showroom/pkg/redis"
)

// IdempotencyHeader carries the client supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set to "true" on responses served from the replay store.
const ReplayedHeader = "Idempotent-Replayed"

const defaultIdempotencyTTL = 24 * time.Hour

// replayedHeaders are the response headers kept with a stored response.
var replayedHeaders = []string{"Content-Type", "Location"}

// idempotencyRule matches a method and a slash separated path pattern where
// "*" stands for exactly one segment.
type idempotencyRule struct {
	method   string
	pattern  []string
	required bool
}

func rule(method, pattern string, required bool) idempotencyRule {
	return idempotencyRule{method: method, pattern: strings.Split(strings.Trim(pattern, "/"), "/"), required: required}
}

func (r idempotencyRule) matches(method string, segments []string) bool {
	if r.method != method || len(r.pattern) != len(segments) {
		return false
	}
	for i, want := range r.pattern {
		if want != "*" && want != segments[i] {
			return false
		}
	}
	return true
}

// Inquiry submission must carry a key so a retried cart submit never files a
// second request. Saving a vehicle is already a no-op when repeated, so the key
// is optional there.
var idempotencyRules = []idempotencyRule{
	rule(http.MethodPost, "/api/v1/requests", true),
	rule(http.MethodPost, "/api/v1/wishlist", false),
	rule(http.MethodPatch, "/api/admin/v1/requests/*/status", false),
}

func matchRule(method, path string) (idempotencyRule, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, candidate := range idempotencyRules {
		if candidate.matches(method, segments) {
			return candidate, true
		}
	}
	return idempotencyRule{}, false
}

type storedResponse struct {
	Status      int               `json:"status"`
	Body        []byte            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the stored 2xx response when a request on one of the
// idempotencyRules routes repeats its Idempotency-Key. Keys are scoped per
// user, method and path. Reusing a key with a different body is rejected, and
// failed attempts are never stored so the client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			matched, ok := matchRule(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				if matched.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			requestHash := digest(body)
			storeKey := store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), clientKey)

			prior, err := lookupResponse(r, store, storeKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if prior != nil {
				if prior.RequestHash != requestHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				prior.writeTo(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			status := capture.statusOrOK()
			if status < 200 || status >= 300 {
				return
			}
			record := storedResponse{Status: status, Body: capture.body.Bytes(), RequestHash: requestHash}
			for _, name := range replayedHeaders {
				if value := capture.Header().Get(name); value != "" {
					if record.Headers == nil {
						record.Headers = map[string]string{}
					}
					record.Headers[name] = value
				}
			}
			payload, err := json.Marshal(record)
			if err == nil {
				_, err = store.SetNX(ctx, storeKey, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", clientKey), "idempotency.store_failed", err)
			}
		})
	}
}

// lookupResponse returns nil without error when nothing is stored under key.
func lookupResponse(r *http.Request, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(r.Context(), key)
	switch {
	case errors.Is(err, pkgredis.Nil):
		return nil, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store unavailable")
	case raw == "":
		return nil, nil
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "corrupt idempotency record")
	}
	return &stored, nil
}

func (s *storedResponse) writeTo(w http.ResponseWriter) {
	for name, value := range s.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
