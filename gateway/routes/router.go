package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/defiboxswap/DefiboxVault/gateway/middleware"
)

type Config struct {
	Vault         *VaultRoutes
	Observability *middleware.Observability
}

// New assembles the gateway router: health and metrics endpoints plus the
// vault API mounted under /v1/vault.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Vault != nil {
		r.Route("/v1/vault", func(sr chi.Router) {
			if obs != nil {
				sr.Use(obs.Middleware("vault"))
			}
			cfg.Vault.mount(sr)
		})
	}

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r
}
