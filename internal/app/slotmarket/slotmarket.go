package slotmarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/junaidookay/mu-online-hub/internal/cache"
	"github.com/junaidookay/mu-online-hub/internal/config"
	"github.com/junaidookay/mu-online-hub/internal/http/handlers/health"
	"github.com/junaidookay/mu-online-hub/internal/lib/jwt"
	"github.com/junaidookay/mu-online-hub/internal/lib/rabbitmq"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/metrics"
	"github.com/junaidookay/mu-online-hub/internal/migrations"
	"github.com/junaidookay/mu-online-hub/internal/paymentprovider"
	accessservice "github.com/junaidookay/mu-online-hub/internal/services/access"
	"github.com/junaidookay/mu-online-hub/internal/services/activation"
	checkoutservice "github.com/junaidookay/mu-online-hub/internal/services/checkout"
	"github.com/junaidookay/mu-online-hub/internal/services/drafts"
	"github.com/junaidookay/mu-online-hub/internal/services/notification"
	"github.com/junaidookay/mu-online-hub/internal/services/pricing"
	"github.com/junaidookay/mu-online-hub/internal/services/webhook"
	"github.com/junaidookay/mu-online-hub/internal/storage/repository"
)

// App HTTP-сервер площадки со всеми зависимостями.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает хранилища и провайдеров оплаты и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "slotmarket.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{logger: logger, db: db, cache: cacheRedis}

	var notifier notification.Notifier = notification.NewDirectNotifier(db)
	if cfg.RabbitMQURL != "" {
		app.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.ch, err = rabbitmq.SetupChannel(app.conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		notifier = notification.NewPublisher(app.ch)
	} else {
		logger.Warn("rabbitmq is not configured, notifications are written directly")
	}

	stripeProvider := paymentprovider.NewStripe(cfg.Stripe, nil)
	paypalProvider, err := paymentprovider.NewPayPal(cfg.PayPal)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !stripeProvider.Configured() {
		logger.Warn("stripe is not configured, checkout will report needsConfiguration")
	}
	if !paypalProvider.Configured() {
		logger.Warn("paypal is not configured, checkout will report needsConfiguration")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	activationService := activation.NewService(db, stripeProvider, paypalProvider, notifier, cacheRedis, m, logger)
	svc := Services{
		Drafts:  drafts.NewService(db, logger),
		Pricing: pricing.NewService(db, cacheRedis, logger),
		Checkout: checkoutservice.NewService(db,
			[]paymentprovider.Provider{stripeProvider, paypalProvider},
			cfg.Payment.Currency, m, logger),
		Activation: activationService,
		Webhooks: webhook.NewService(db, activationService, stripeProvider, paypalProvider,
			cfg.Payment.PlatformFeePercent, m, logger),
		Access:        accessservice.NewService(db, cacheRedis, m, logger),
		Notifications: notification.NewService(db, logger),
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, jwt.NewJWTMaker(cfg.JWTSecretKey, 0), svc, map[string]health.Pinger{
		"postgres": db,
		"redis":    cacheRedis,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
