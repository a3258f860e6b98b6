// Package vibeboost предоставляет маршруты для основного приложения.
package vibeboost

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vibeboost/backend/internal/config"
	"github.com/vibeboost/backend/internal/filestore"
	"github.com/vibeboost/backend/internal/http/handlers/billing/webhook"
	"github.com/vibeboost/backend/internal/http/handlers/files/download"
	"github.com/vibeboost/backend/internal/http/handlers/files/upload"
	"github.com/vibeboost/backend/internal/http/handlers/generation/generate"
	"github.com/vibeboost/backend/internal/http/handlers/subscription/cancel"
	"github.com/vibeboost/backend/internal/http/handlers/subscription/checkout"
	"github.com/vibeboost/backend/internal/http/handlers/subscription/plans"
	"github.com/vibeboost/backend/internal/http/handlers/subscription/portal"
	"github.com/vibeboost/backend/internal/http/handlers/subscription/reactivate"
	"github.com/vibeboost/backend/internal/http/handlers/subscription/status"
	"github.com/vibeboost/backend/internal/http/handlers/subscription/upgrade"
	"github.com/vibeboost/backend/internal/http/middlewarectx"
	supajwt "github.com/vibeboost/backend/internal/lib/jwt"
	billingservice "github.com/vibeboost/backend/internal/services/billing"
	generationservice "github.com/vibeboost/backend/internal/services/generation"
	subservice "github.com/vibeboost/backend/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, verifier *supajwt.Verifier,
	subscriptionService *subservice.SubscriptionService, billingService *billingservice.BillingService,
	generationService *generationservice.GenerationService, fileStore *filestore.Store) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Get("/plans", plans.New(logger, subscriptionService).ServeHTTP)

		// Группа с JWT аутентификацией Supabase
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.AuthMiddleware(verifier, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/subscription/status", status.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscription/checkout", checkout.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscription/cancel", cancel.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscription/reactivate", reactivate.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscription/upgrade", upgrade.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscription/portal", portal.New(logger, subscriptionService).ServeHTTP)
			r.Post("/generate", generate.New(logger, generationService, cfg.Credits.DefaultImages).ServeHTTP)
			r.Post("/files/upload", upload.New(logger, fileStore).ServeHTTP)
			r.Get("/files/{filename}", download.New(logger, fileStore).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации)
		r.Post("/webhook/stripe", webhook.New(logger, billingService, cfg.Stripe.WebhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
