// Package slotmarket собирает HTTP-приложение площадки слотов.
package slotmarket

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/junaidookay/mu-online-hub/internal/http/handlers/drafts/create"
	draftslist "github.com/junaidookay/mu-online-hub/internal/http/handlers/drafts/list"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/drafts/publish"
	draftsread "github.com/junaidookay/mu-online-hub/internal/http/handlers/drafts/read"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/drafts/remove"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/drafts/update"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/health"
	notificationslist "github.com/junaidookay/mu-online-hub/internal/http/handlers/notifications/list"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/notifications/read"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/payment/activate"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/payment/checkout"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/payment/paypalwebhook"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/payment/stripewebhook"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/slots/access"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/slots/overview"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/slots/packages"
	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	accessservice "github.com/junaidookay/mu-online-hub/internal/services/access"
	"github.com/junaidookay/mu-online-hub/internal/services/activation"
	checkoutservice "github.com/junaidookay/mu-online-hub/internal/services/checkout"
	"github.com/junaidookay/mu-online-hub/internal/services/drafts"
	"github.com/junaidookay/mu-online-hub/internal/services/notification"
	"github.com/junaidookay/mu-online-hub/internal/services/pricing"
	"github.com/junaidookay/mu-online-hub/internal/services/webhook"
)

// Лимит запросов на пользователя для защищённых маршрутов.
const (
	userRateLimit = rate.Limit(5)
	userRateBurst = 20
)

// Services сервисы, которые обслуживают маршруты.
type Services struct {
	Drafts        *drafts.Service
	Pricing       *pricing.Service
	Checkout      *checkoutservice.Service
	Activation    *activation.Service
	Webhooks      *webhook.Service
	Access        *accessservice.Service
	Notifications *notification.Service
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, tokens middlewarectx.TokenParser, svc Services, checks map[string]health.Pinger) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Get("/slots", overview.New(logger, svc.Pricing).ServeHTTP)
		r.Get("/slots/{slotID}/packages", packages.New(logger, svc.Pricing).ServeHTTP)

		// Вебхуки провайдеров: подпись вместо JWT
		r.Post("/webhooks/stripe", stripewebhook.New(logger, svc.Webhooks).ServeHTTP)
		r.Post("/webhooks/paypal", paypalwebhook.New(logger, svc.Webhooks).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokens, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger, userRateLimit, userRateBurst))

			r.Post("/drafts", create.New(logger, svc.Drafts, svc.Activation).ServeHTTP)
			r.Get("/drafts", draftslist.New(logger, svc.Drafts).ServeHTTP)
			r.Get("/drafts/{kind}/{id}", draftsread.New(logger, svc.Drafts).ServeHTTP)
			r.Put("/drafts/{kind}/{id}", update.New(logger, svc.Drafts).ServeHTTP)
			r.Delete("/drafts/{kind}/{id}", remove.New(logger, svc.Drafts).ServeHTTP)
			r.Post("/drafts/{kind}/{id}/publish", publish.New(logger, svc.Activation).ServeHTTP)

			r.Post("/checkout", checkout.New(logger, svc.Checkout).ServeHTTP)
			r.Post("/activations", activate.New(logger, svc.Activation).ServeHTTP)
			r.Get("/slots/{slotID}/access", access.New(logger, svc.Access).ServeHTTP)

			r.Get("/notifications", notificationslist.New(logger, svc.Notifications).ServeHTTP)
			r.Post("/notifications/{id}/read", read.New(logger, svc.Notifications).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, checks).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
