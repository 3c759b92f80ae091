package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/api/validators"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy throttles one auth surface (signup, login) by client IP
// and by the hashed email in the request body. A zero limit disables that
// dimension.
type AuthRateLimitPolicy struct {
	surface    string
	window     time.Duration
	ipLimit    int64
	emailLimit int64
}

func NewAuthRateLimitPolicy(surface string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	surface = strings.ToLower(strings.TrimSpace(surface))
	if surface == "" {
		surface = "auth"
	}
	return AuthRateLimitPolicy{
		surface:    surface,
		window:     window,
		ipLimit:    int64(max(ipLimit, 0)),
		emailLimit: int64(max(emailLimit, 0)),
	}
}

func (p AuthRateLimitPolicy) active() bool {
	return p.window > 0 && p.ipLimit+p.emailLimit > 0
}

// counter is one throttled dimension resolved for a single request.
type counter struct {
	dimension string
	value     string
	limit     int64
}

func (p AuthRateLimitPolicy) scope(c counter) string {
	return "auth:" + p.surface + ":" + c.dimension + ":" + c.value
}

// AuthRateLimit rejects requests with 429 once any counter of policy is
// exhausted within its window. Counter store failures surface as dependency
// errors rather than letting traffic through.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			counters, err := policy.counters(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			for _, c := range counters {
				allowed, attempts, err := store.FixedWindowAllow(ctx, policy.scope(c), c.limit, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if !allowed {
					policy.reject(ctx, logg, w, c, attempts)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// counters resolves the dimensions for r. Reading the email rewinds the body so
// the auth handler can decode it again.
func (p AuthRateLimitPolicy) counters(r *http.Request) ([]counter, error) {
	out := make([]counter, 0, 2)
	if p.ipLimit > 0 {
		if ip := clientIP(r); ip != "" {
			out = append(out, counter{dimension: "ip", value: ip, limit: p.ipLimit})
		}
	}
	if p.emailLimit > 0 && r.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(r.Body, validators.MaxBodyBytes))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body")
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if email := emailFromBody(raw); email != "" {
			out = append(out, counter{dimension: "email", value: hashValue(email), limit: p.emailLimit})
		}
	}
	return out, nil
}

func (p AuthRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, c counter, attempts int64) {
	retryAfter := int(p.window.Round(time.Second).Seconds())
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"surface":        p.surface,
			"dimension":      c.dimension,
			"key":            c.value,
			"attempts":       attempts,
			"limit":          c.limit,
			"window_seconds": retryAfter,
		})
		logg.Warn(logCtx, "auth.rate_limited")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

func clientIP(r *http.Request) string {
	if forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(forwarded) != "" {
		return strings.TrimSpace(forwarded)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
