// Package notificationworker читает события площадки из RabbitMQ и сохраняет уведомления пользователей.
package notificationworker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/junaidookay/mu-online-hub/internal/config"
	"github.com/junaidookay/mu-online-hub/internal/lib/rabbitmq"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/services/notification"
	"github.com/junaidookay/mu-online-hub/internal/storage/repository"
)

type App struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	db      *repository.Storage
	service *notification.Service
	logger  *slog.Logger
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("rabbitmq url is required for notification worker")
	}
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, err
	}

	return &App{
		conn:    conn,
		ch:      ch,
		db:      db,
		service: notification.NewService(db, logger),
		logger:  logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	for _, q := range rabbitmq.GetNotificationQueues() {
		if err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, q.QueueName, a.service.HandleMessage); err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			a.close()
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("notification worker shutting down gracefully")
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
