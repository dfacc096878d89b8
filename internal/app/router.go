package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowbooks/flowbooks/internal/documents"
	"github.com/flowbooks/flowbooks/internal/observability"
	"github.com/flowbooks/flowbooks/internal/platform/httpx"
)

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config    *Config
	Metrics   *observability.Metrics
	Documents *documents.Handler
	JobHealth http.HandlerFunc
}

// NewRouter builds the HTTP router with the middleware stack and all routes.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()
	MiddlewareStack(r, deps.Config, deps.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/documents", deps.Documents.MountRoutes)
		if deps.JobHealth != nil {
			api.Get("/jobs/health", deps.JobHealth)
		}
	})

	return r
}
