package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/flowbooks/flowbooks/internal/observability"
)

// MiddlewareStack wires the standard middleware chain onto the router.
func MiddlewareStack(r chi.Router, cfg *Config, metrics *observability.Metrics) {
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.AppRequestTimeout))
	r.Use(chimw.Compress(5))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		IsDevelopment:         !cfg.IsProduction(),
	})
	r.Use(secureMiddleware.Handler)

	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.Limit(
			cfg.RateLimitPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			}),
		))
	}

	if metrics != nil {
		r.Use(metrics.Middleware)
	}
}
