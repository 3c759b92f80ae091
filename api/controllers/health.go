package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dealerhub/showroom/api/responses"
	"github.com/dealerhub/showroom/pkg/config"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
)

const envHeader = "X-Showroom-Env"

// Pinger is the readiness probe surface of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports which ones failed.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency not ready").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
