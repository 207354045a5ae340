package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fuomag9/meshwatch/internal/config"
)

// Deps are the collaborators the router serves from
type Deps struct {
	Logger      *zap.Logger
	Store       Store
	Health      healthcheck.Handler
	Gatherer    prometheus.Gatherer
	RateLimiter *RateLimiter
	// WebSocket serves /ws when set
	WebSocket http.HandlerFunc
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg.Environment == "production"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = NewRateLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.RateBurst)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter))
		r.Use(AuthMiddleware(cfg.JWTSecret, deps.Logger))
		r.Use(middleware.Compress(5))

		r.Get("/monitor-types", HandleGetMonitorTypes())
		r.Get("/monitors", HandleGetMonitors(deps.Store, deps.Logger))
		r.Get("/monitors/{id}", HandleGetMonitor(deps.Store, deps.Logger))
		r.Get("/monitors/{id}/heartbeats", HandleGetHeartbeats(deps.Store, deps.Logger))
		r.Get("/monitors/{id}/uptime", HandleGetMonitorUptime(deps.Store, deps.Logger))
		r.Get("/monitors/{id}/uptime/history", HandleGetMonitorUptimeHistory(deps.Store, deps.Logger))
		r.Post("/monitors/{id}/check", HandleCheckMonitor(deps.Store, deps.Logger))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if deps.WebSocket != nil {
		r.Get("/ws", deps.WebSocket)
	}

	if deps.Health != nil {
		r.Get("/live", deps.Health.LiveEndpoint)
		r.Get("/ready", deps.Health.ReadyEndpoint)
	}

	return r
}
