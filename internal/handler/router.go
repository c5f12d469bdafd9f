package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/middleware"
)

const (
	msgPlaceNotFound = "Could not find a place for the provided id."
	msgDeleteMissing = "Could not find place for this id."

	// UploadsPath is where locally stored images are served.
	UploadsPath = "/uploads"
)

// RouterConfig wires handlers and middleware into a router.
type RouterConfig struct {
	Logger   *slog.Logger
	Places   *PlaceHandler
	Users    *UserHandler
	Health   *HealthHandler
	Metrics  *MetricsHandler // optional
	Uploads  http.Handler    // optional, serves UploadsPath
	Verifier middleware.TokenVerifier
	Recorder metrics.Recorder

	RateLimit   middleware.RateLimitConfig
	CORS        middleware.CORSConfig
	Security    middleware.SecurityConfig
	MaxBodySize int64
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	security := cfg.Security
	if security.PublicPrefix == "" {
		security.PublicPrefix = UploadsPath + "/"
	}
	r.Use(middleware.Security(security))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
	}

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.Get("/metrics", cfg.Metrics.Metrics)
	}
	if cfg.Uploads != nil {
		r.Mount(UploadsPath, http.StripPrefix(UploadsPath, cfg.Uploads))
	}

	requireAuth := middleware.Auth(middleware.AuthConfig{
		Logger:   cfg.Logger,
		Verifier: cfg.Verifier,
		Metrics:  cfg.Recorder,
	})
	placeID := middleware.RequireIDParams(map[string]string{"pid": msgPlaceNotFound})
	deletablePlaceID := middleware.RequireIDParams(map[string]string{"pid": msgDeleteMissing})

	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", cfg.Users.List)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(cfg.RateLimit))
			r.Post("/signup", cfg.Users.Signup)
			r.Post("/login", cfg.Users.Login)
		})
	})

	r.Route("/api/places", func(r chi.Router) {
		r.Get("/user/{uid}", cfg.Places.ListByUser)
		r.With(placeID).Get("/{pid}", cfg.Places.Get)

		// Everything below requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", cfg.Places.Create)
			r.With(placeID).Patch("/{pid}", cfg.Places.Update)
			r.With(deletablePlaceID).Delete("/{pid}", cfg.Places.Delete)
		})
	})

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
