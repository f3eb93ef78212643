package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/bookhavenhq/bookhaven-backend/api/responses"
	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

const readinessTimeout = 3 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BookHaven-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, db pinger, cache pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BookHaven-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		for name, dep := range map[string]pinger{
			"database": db,
			"redis":    cache,
		} {
			if dep == nil {
				checks[name] = "not configured"
				healthy = false
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		if !healthy {
			errCtx := r.Context()
			if logg != nil {
				errCtx = logg.WithFields(errCtx, map[string]any{"checks": checks})
			}
			responses.WriteError(errCtx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency not ready"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
