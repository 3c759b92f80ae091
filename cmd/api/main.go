package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dealerhub/showroom/api/routes"
	"github.com/dealerhub/showroom/internal/auth"
	"github.com/dealerhub/showroom/internal/inquiries"
	"github.com/dealerhub/showroom/internal/users"
	"github.com/dealerhub/showroom/internal/vehicles"
	"github.com/dealerhub/showroom/internal/wishlist"
	"github.com/dealerhub/showroom/pkg/auth/session"
	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/db"
	"github.com/dealerhub/showroom/pkg/instance"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/metrics"
	"github.com/dealerhub/showroom/pkg/migrate"
	"github.com/dealerhub/showroom/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())
	vehicleRepo := vehicles.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	requireService(ctx, logg, "auth", err)
	userService, err := users.NewService(userRepo)
	requireService(ctx, logg, "users", err)
	vehicleService, err := vehicles.NewService(vehicleRepo)
	requireService(ctx, logg, "vehicles", err)
	wishlistService, err := wishlist.NewService(wishlist.NewRepository(dbClient.DB()), vehicleRepo)
	requireService(ctx, logg, "wishlist", err)
	inquiryService, err := inquiries.NewService(inquiries.NewRepository(dbClient.DB()), vehicleRepo)
	requireService(ctx, logg, "inquiries", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Sessions:  sessionManager,
			Metrics:   metrics.NewHTTPMetrics(registry),
			Gatherer:  registry,
			Auth:      authService,
			Users:     userService,
			Vehicles:  vehicleService,
			Wishlist:  wishlistService,
			Inquiries: inquiryService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func requireService(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "service", name), "failed to create service", err)
	os.Exit(1)
}
