package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dealerhub/showroom/internal/auth"
	"github.com/dealerhub/showroom/internal/inquiries"
	"github.com/dealerhub/showroom/internal/users"
	"github.com/dealerhub/showroom/internal/vehicles"
	"github.com/dealerhub/showroom/internal/wishlist"
	"github.com/dealerhub/showroom/pkg/auth/session"
	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/db/dbtest"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/metrics"
	redisclient "github.com/dealerhub/showroom/pkg/redis"
)

type harness struct {
	server  *httptest.Server
	vehicle *models.Vehicle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "showroom", ExpirationMinutes: 30, RefreshTokenTTLMinutes: 600},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow: time.Minute, LoginEmailLimit: 100, LoginIPLimit: 100,
			SignupWindow: time.Minute, SignupEmailLimit: 100, SignupIPLimit: 100,
		},
		Idempotency: config.IdempotencyConfig{TTL: time.Hour},
		CORS:        config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	client := dbtest.Open(t)
	mr := miniredis.RunT(t)
	rdb := redisclient.FromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	sessions, err := session.NewManager(rdb, cfg.JWT)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	userRepo := users.NewRepository(client.DB())
	vehicleRepo := vehicles.NewRepository(client.DB())
	authSvc, err := auth.NewService(auth.ServiceParams{UserRepo: userRepo, SessionManager: sessions, JWTConfig: cfg.JWT})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	userSvc, err := users.NewService(userRepo)
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	vehicleSvc, err := vehicles.NewService(vehicleRepo)
	if err != nil {
		t.Fatalf("vehicle service: %v", err)
	}
	wishlistSvc, err := wishlist.NewService(wishlist.NewRepository(client.DB()), vehicleRepo)
	if err != nil {
		t.Fatalf("wishlist service: %v", err)
	}
	inquirySvc, err := inquiries.NewService(inquiries.NewRepository(client.DB()), vehicleRepo)
	if err != nil {
		t.Fatalf("inquiry service: %v", err)
	}

	reg := prometheus.NewRegistry()
	handler := NewRouter(Dependencies{
		Config:    cfg,
		Logger:    logger.Nop(),
		DB:        client,
		Redis:     rdb,
		Sessions:  sessions,
		Metrics:   metrics.NewHTTPMetrics(reg),
		Gatherer:  reg,
		Auth:      authSvc,
		Users:     userSvc,
		Vehicles:  vehicleSvc,
		Wishlist:  wishlistSvc,
		Inquiries: inquirySvc,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &harness{
		server:  server,
		vehicle: dbtest.MustCreateVehicle(t, client.DB(), "Mazda", "CX-5", "28999.00"),
	}
}

func (h *harness) do(t *testing.T, method, path, token string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func data(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	d, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data envelope: %#v", payload)
	}
	return d
}

func (h *harness) signup(t *testing.T, email string) (string, string) {
	t.Helper()
	status, payload := h.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]any{
		"email": email, "password": "Sup3r-secret!", "full_name": "Pat Shopper",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %#v", status, payload)
	}
	d := data(t, payload)
	return d["access_token"].(string), d["refresh_token"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	if status, _ := h.do(t, http.MethodGet, "/health/live", "", nil, nil); status != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", status)
	}
	if status, payload := h.do(t, http.MethodGet, "/health/ready", "", nil, nil); status != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d: %#v", status, payload)
	}

	resp, err := http.Get(h.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("http_requests_total")) {
		t.Fatalf("expected request counter in metrics output, got %d", resp.StatusCode)
	}
}

func TestPublicCatalog(t *testing.T) {
	h := newHarness(t)

	status, payload := h.do(t, http.MethodGet, "/api/public/v1/vehicles?make=mazda", "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	items, _ := data(t, payload)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one vehicle, got %d", len(items))
	}

	status, _ = h.do(t, http.MethodGet, "/api/public/v1/vehicles/"+h.vehicle.ID.String(), "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for vehicle detail, got %d", status)
	}
}

func TestPrivateRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/v1/wishlist", "/api/v1/requests", "/api/v1/auth/user", "/api/admin/v1/requests"} {
		if status, _ := h.do(t, http.MethodGet, path, "", nil, nil); status != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, status)
		}
	}
}

func TestShopperFlow(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.signup(t, "pat@example.com")

	status, payload := h.do(t, http.MethodGet, "/api/v1/auth/user", access, nil, nil)
	if status != http.StatusOK || data(t, payload)["email"] != "pat@example.com" {
		t.Fatalf("current user: %d %#v", status, payload)
	}

	status, payload = h.do(t, http.MethodPost, "/api/v1/wishlist", access, map[string]any{"vehicle_id": h.vehicle.ID.String()}, nil)
	if status != http.StatusCreated {
		t.Fatalf("wishlist add: %d %#v", status, payload)
	}
	itemID := data(t, payload)["id"].(string)

	status, payload = h.do(t, http.MethodPost, "/api/v1/wishlist", access, map[string]any{"vehicle_id": h.vehicle.ID.String()}, nil)
	if status != http.StatusCreated || data(t, payload)["id"] != itemID {
		t.Fatalf("expected repeated save to return the same row, got %d %#v", status, payload)
	}

	if status, _ = h.do(t, http.MethodDelete, "/api/v1/wishlist/"+itemID, access, nil, nil); status != http.StatusNoContent {
		t.Fatalf("wishlist remove: expected 204, got %d", status)
	}
	if status, _ = h.do(t, http.MethodDelete, "/api/v1/wishlist/"+itemID, access, nil, nil); status != http.StatusNoContent {
		t.Fatalf("wishlist remove twice: expected 204, got %d", status)
	}

	inquiry := map[string]any{
		"vehicle_id":   h.vehicle.ID.String(),
		"inquiry_type": "test_drive",
		"subject":      "Test drive",
		"message":      "Saturday morning works",
	}
	if status, _ = h.do(t, http.MethodPost, "/api/v1/requests", access, inquiry, nil); status != http.StatusBadRequest {
		t.Fatalf("expected missing idempotency key to be rejected, got %d", status)
	}
	key := map[string]string{"Idempotency-Key": "cart-item-1"}
	status, first := h.do(t, http.MethodPost, "/api/v1/requests", access, inquiry, key)
	if status != http.StatusCreated {
		t.Fatalf("create request: %d %#v", status, first)
	}
	status, replay := h.do(t, http.MethodPost, "/api/v1/requests", access, inquiry, key)
	if status != http.StatusCreated || data(t, replay)["id"] != data(t, first)["id"] {
		t.Fatalf("expected replayed request, got %d %#v", status, replay)
	}

	status, payload = h.do(t, http.MethodPost, "/api/v1/auth/refresh", access, map[string]any{"refresh_token": refresh}, nil)
	if status != http.StatusOK {
		t.Fatalf("refresh: %d %#v", status, payload)
	}
	rotated := data(t, payload)["access_token"].(string)

	if status, _ = h.do(t, http.MethodGet, "/api/v1/requests", access, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected rotated-out token to be rejected, got %d", status)
	}
	if status, _ = h.do(t, http.MethodPost, "/api/v1/auth/logout", rotated, nil, nil); status != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", status)
	}
	if status, _ = h.do(t, http.MethodGet, "/api/v1/requests", rotated, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected logged out token to be rejected, got %d", status)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	h := newHarness(t)
	access, _ := h.signup(t, "shopper@example.com")

	if status, _ := h.do(t, http.MethodGet, "/api/admin/v1/requests", access, nil, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for shopper on admin route, got %d", status)
	}
}
