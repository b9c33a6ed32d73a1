package subscriptionradar

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/magabrotheeeer/subscription-radar/docs"
	"github.com/magabrotheeeer/subscription-radar/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/subscription-radar/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/subscription-radar/internal/http/handlers/health"
	"github.com/magabrotheeeer/subscription-radar/internal/http/handlers/recompute/trigger"
	subduplicates "github.com/magabrotheeeer/subscription-radar/internal/http/handlers/subscription/duplicates"
	subignore "github.com/magabrotheeeer/subscription-radar/internal/http/handlers/subscription/ignore"
	subinsights "github.com/magabrotheeeer/subscription-radar/internal/http/handlers/subscription/insights"
	sublist "github.com/magabrotheeeer/subscription-radar/internal/http/handlers/subscription/list"
	txlist "github.com/magabrotheeeer/subscription-radar/internal/http/handlers/transaction/list"
	"github.com/magabrotheeeer/subscription-radar/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-radar/internal/rabbitmq"
	authservice "github.com/magabrotheeeer/subscription-radar/internal/services/auth"
	subservice "github.com/magabrotheeeer/subscription-radar/internal/services/subscription"
	"github.com/magabrotheeeer/subscription-radar/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты API-сервиса.
func RegisterRoutes(r chi.Router, logger *slog.Logger, db *repository.Storage,
	authService *authservice.AuthService, subscriptionService *subservice.SubscriptionService,
	publisher *rabbitmq.ChannelPublisher) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/subscriptions", sublist.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/duplicates", subduplicates.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/{id}/insights", subinsights.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscriptions/{id}/ignore", subignore.New(logger, subscriptionService).ServeHTTP)
			r.Get("/transactions", txlist.New(logger, subscriptionService).ServeHTTP)
			r.Post("/recompute", trigger.New(logger, publisher).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, db.DB).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
