// Package notification доставляет уведомления пользователям: публикация события в RabbitMQ,
// запись в базу потребителем и чтение списка уведомлений.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/junaidookay/mu-online-hub/internal/lib/rabbitmq"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

// Repository хранилище уведомлений.
type Repository interface {
	InsertNotification(ctx context.Context, n models.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
}

// Notifier отправляет уведомление с ключом маршрутизации события.
type Notifier interface {
	Notify(ctx context.Context, routingKey string, n models.Notification) error
}

// Publisher публикует уведомления в обменник notifications.
type Publisher struct {
	publish func(routingKey string, msg any) error
}

// NewPublisher создаёт издателя поверх открытого канала.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{
		publish: func(routingKey string, msg any) error {
			return rabbitmq.PublishMessage(ch, rabbitmq.NotificationsExchange, routingKey, msg)
		},
	}
}

func (p *Publisher) Notify(_ context.Context, routingKey string, n models.Notification) error {
	const op = "notification.Publisher.Notify"
	if err := p.publish(routingKey, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DirectNotifier пишет уведомление сразу в базу. Используется без RabbitMQ.
type DirectNotifier struct {
	repo Repository
}

func NewDirectNotifier(repo Repository) *DirectNotifier {
	return &DirectNotifier{repo: repo}
}

func (d *DirectNotifier) Notify(ctx context.Context, _ string, n models.Notification) error {
	const op = "notification.DirectNotifier.Notify"
	if _, err := d.repo.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Service чтение уведомлений и обработка сообщений из очереди.
type Service struct {
	repo    Repository
	log     *slog.Logger
	timeout time.Duration
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, timeout: 10 * time.Second}
}

// HandleMessage обработчик сообщения очереди. Повторная доставка не создаёт дубль
// благодаря уникальному dedup_key. Ошибка возвращает сообщение в очередь.
func (s *Service) HandleMessage(body []byte) error {
	const op = "notification.HandleMessage"
	log := s.log.With(slog.String("op", op))

	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		// битое сообщение не исправится повтором
		log.Error("failed to unmarshal message body", sl.Err(err))
		return nil
	}
	if n.UserID == "" || n.DedupKey == "" {
		log.Warn("notification without user or dedup key dropped")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	inserted, err := s.repo.InsertNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !inserted {
		log.Debug("duplicate notification skipped", slog.String("dedup_key", n.DedupKey))
	}
	return nil
}

// List уведомления пользователя, новые первыми.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListNotifications(ctx, userID, limit, offset)
}

// MarkRead отмечает уведомление прочитанным.
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	return s.repo.MarkNotificationRead(ctx, id, userID)
}

// Activated уведомление об активации размещения.
func Activated(res models.ActivationResult) models.Notification {
	name := slotName(res.SlotID)
	n := models.Notification{
		UserID: res.UserID,
		Title:  "Listing activated",
		Kind:   "success",
	}
	ref := res.PurchaseID
	if ref == "" {
		ref = res.DraftID
	}
	if res.ExpiresAt != nil {
		n.Message = fmt.Sprintf("Your listing is live in %s until %s.", name, res.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
		n.DedupKey = fmt.Sprintf("activation:%s:%d", ref, res.ExpiresAt.Unix())
	} else {
		n.Message = fmt.Sprintf("Your listing is live in %s.", name)
		n.DedupKey = fmt.Sprintf("activation:%s:none", ref)
	}
	return n
}

// Expired уведомление об окончании размещения.
func Expired(l models.ExpiredListing) models.Notification {
	name := "its slot"
	if l.SlotID != nil {
		name = slotName(*l.SlotID)
	}
	return models.Notification{
		UserID:   l.UserID,
		Title:    "Listing expired",
		Message:  fmt.Sprintf("Your %s listing in %s has expired. Renew it to stay on the homepage.", l.Kind, name),
		Kind:     "warning",
		DedupKey: fmt.Sprintf("expired:%s:%s:%d", l.Kind, l.ID, l.ExpiresAt.Unix()),
	}
}

func slotName(id int) string {
	if s, ok := slots.Get(id); ok {
		return s.Name
	}
	return fmt.Sprintf("slot %d", id)
}
