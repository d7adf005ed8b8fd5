package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/health"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/middleware"
)

// RouterConfig carries the handlers and HTTP settings for NewRouter.
type RouterConfig struct {
	ServiceName string

	Doctors DoctorService
	Reviews ReviewService
	Ratings RatingAdmin
	Health  *health.Handler

	CORSAllowedOrigins []string
	AdminAllowedCIDRs  []string
	PprofAllowedCIDRs  []string

	// ReviewRateLimitRPS limits review writes per patient. 0 disables it.
	ReviewRateLimitRPS   float64
	ReviewRateLimitBurst int

	// DoctorCacheMaxAge is the Cache-Control max-age for public reads.
	DoctorCacheMaxAge int
}

// NewRouter creates a chi router with all portal routes registered.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.Identity)
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	doctorHandler := NewDoctorHandler(cfg.Doctors, logger)
	reviewHandler := NewReviewHandler(cfg.Reviews, logger)
	adminHandler := NewAdminHandler(cfg.Ratings, logger)

	reviewWrites := func(r chi.Router) {
		r.Use(middleware.RequireUser)
		if cfg.ReviewRateLimitRPS > 0 {
			r.Use(middleware.RateLimit(cfg.ReviewRateLimitRPS, cfg.ReviewRateLimitBurst, logger))
		}
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Route("/doctors", func(r chi.Router) {
			r.With(middleware.CacheControl(cfg.DoctorCacheMaxAge)).Get("/", doctorHandler.ListDoctors)
			r.Post("/", doctorHandler.CreateDoctor)
			r.With(middleware.CacheControl(cfg.DoctorCacheMaxAge)).Get("/{idOrSlug}", doctorHandler.GetDoctor)
			r.Put("/{id}", doctorHandler.UpdateDoctor)
			r.Delete("/{id}", doctorHandler.DeleteDoctor)

			r.Get("/{doctorId}/reviews", reviewHandler.ListReviews)
			r.Group(func(r chi.Router) {
				reviewWrites(r)
				r.Post("/{doctorId}/reviews", reviewHandler.CreateReview)
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/{id}", reviewHandler.GetReview)
			r.Group(func(r chi.Router) {
				reviewWrites(r)
				r.Put("/{id}", reviewHandler.UpdateReview)
				r.Delete("/{id}", reviewHandler.DeleteReview)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.IPAllowlist(cfg.AdminAllowedCIDRs, logger))
			r.Post("/ratings/reconcile", adminHandler.Reconcile)
			r.Post("/doctors/{id}/rating/recompute", adminHandler.RecomputeDoctor)
		})
	})

	return r
}
