package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/fabzclean/fabzclean-backend/api/responses"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is anything the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FabZClean-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports 503 when one is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FabZClean-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				if logg != nil {
					logg.Error(logg.WithField(r.Context(), "dependency", name), "readiness check failed", err)
				}
				continue
			}
			checks[name] = "up"
		}

		for name, state := range checks {
			if state != "up" {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Newf(pkgerrors.CodeDependency, "%s unavailable", name).WithDetails(map[string]any{"checks": checks}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
