package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dealerhub/showroom/api/controllers"
	"github.com/dealerhub/showroom/api/middleware"
	"github.com/dealerhub/showroom/internal/auth"
	"github.com/dealerhub/showroom/internal/inquiries"
	"github.com/dealerhub/showroom/internal/users"
	"github.com/dealerhub/showroom/internal/vehicles"
	"github.com/dealerhub/showroom/internal/wishlist"
	"github.com/dealerhub/showroom/pkg/auth/session"
	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/metrics"
	"github.com/dealerhub/showroom/pkg/redis"
)

// Dependencies is everything the API surface needs from cmd/api. Redis is
// required: rate limiting, idempotency and sessions all live there.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer

	Auth      auth.Service
	Users     users.Service
	Vehicles  vehicles.Service
	Wishlist  wishlist.Service
	Inquiries inquiries.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	signupPolicy := middleware.NewAuthRateLimitPolicy(
		"signup",
		cfg.AuthRateLimit.SignupWindow,
		cfg.AuthRateLimit.SignupIPLimit,
		cfg.AuthRateLimit.SignupEmailLimit,
	)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	readiness := map[string]controllers.Pinger{"db": deps.DB, "redis": deps.Redis}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api/public/v1/vehicles", func(r chi.Router) {
		r.Get("/", controllers.VehicleList(deps.Vehicles, logg))
		r.Get("/{vehicleId}", controllers.VehicleGet(deps.Vehicles, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(signupPolicy, deps.Redis, logg)).Post("/signup", controllers.AuthSignup(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.AuthAllowExpired(cfg.JWT, logg)).Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
			r.Get("/user", controllers.CurrentUser(deps.Users, logg))
			r.Patch("/user", controllers.UpdateCurrentUser(deps.Users, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(deps.Redis, cfg.Idempotency.TTL, logg))

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(deps.Wishlist, logg))
			r.Post("/", controllers.WishlistAdd(deps.Wishlist, logg))
			r.Delete("/{entryId}", controllers.WishlistRemove(deps.Wishlist, logg))
		})
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", controllers.RequestListOwn(deps.Inquiries, logg))
			r.Post("/", controllers.RequestCreate(deps.Inquiries, logg))
			r.Patch("/{requestId}", controllers.RequestUpdateOwn(deps.Inquiries, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.LogDenied(logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin))
		r.Use(middleware.Idempotency(deps.Redis, cfg.Idempotency.TTL, logg))

		r.Get("/requests", controllers.AdminRequestList(deps.Inquiries, logg))
		r.Patch("/requests/{requestId}/status", controllers.AdminRequestSetStatus(deps.Inquiries, logg))
		r.Get("/users", controllers.AdminListUsers(deps.Users, logg))
		r.Patch("/users/{userId}/role", controllers.AdminSetUserRole(deps.Users, logg))
	})

	return r
}
