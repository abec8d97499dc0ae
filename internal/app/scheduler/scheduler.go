// Package scheduler запускает фоновую очистку истёкших размещений по расписанию cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/junaidookay/mu-online-hub/internal/config"
	"github.com/junaidookay/mu-online-hub/internal/lib/rabbitmq"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/services/notification"
	"github.com/junaidookay/mu-online-hub/internal/services/sweeper"
	"github.com/junaidookay/mu-online-hub/internal/storage/repository"
)

// Sweeper один проход очистки.
type Sweeper interface {
	Run(ctx context.Context) (sweeper.Report, error)
}

// App представляет приложение планировщика.
type App struct {
	sweeper Sweeper
	spec    string
	db      *repository.Storage
	conn    *amqp.Connection
	ch      *amqp.Channel
	logger  *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		if err := repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{spec: cfg.Scheduler.SweepSpec, db: db, logger: logger}

	var notifier notification.Notifier = notification.NewDirectNotifier(db)
	if cfg.RabbitMQURL != "" {
		app.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.ch, err = rabbitmq.SetupChannel(app.conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		notifier = notification.NewPublisher(app.ch)
	}

	// метрики планировщика не публикуются: у процесса нет HTTP-сервера
	app.sweeper = sweeper.NewService(db, notifier, cfg.Checkout.PendingTTL, nil, logger)
	return app, nil
}

// Run выполняет очистку сразу и затем по расписанию до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(a.spec, func() { a.sweep(ctx) }); err != nil {
		a.close()
		return fmt.Errorf("invalid sweep schedule %q: %w", a.spec, err)
	}

	a.sweep(ctx)
	c.Start()
	a.logger.Info("scheduler started", slog.String("spec", a.spec))

	<-ctx.Done()
	a.logger.Info("shutting down scheduler service")
	<-c.Stop().Done()
	a.close()
	return nil
}

func (a *App) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := a.sweeper.Run(ctx)
	if err != nil {
		a.logger.Error("sweep finished with errors", sl.Err(err))
	}
	a.logger.Info("sweep done",
		slog.Int("listings", rep.Listings),
		slog.Int64("purchases", rep.Purchases),
		slog.Int("abandoned", rep.Abandoned),
	)
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
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
