// Package activation единственная точка активации черновиков: по вебхуку провайдера,
// по прямому вызову клиента с подтверждённой сессией и публикация без оплаты.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/junaidookay/mu-online-hub/internal/lib/rabbitmq"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/metrics"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
	"github.com/junaidookay/mu-online-hub/internal/paymentprovider"
	"github.com/junaidookay/mu-online-hub/internal/services/access"
	"github.com/junaidookay/mu-online-hub/internal/services/drafts"
	"github.com/junaidookay/mu-online-hub/internal/services/notification"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

// Repository транзакционные операции активации.
type Repository interface {
	ActivateDraft(ctx context.Context, a models.Activation) (models.ActivationResult, error)
	PublishDraft(ctx context.Context, p models.Publication) (models.ActivationResult, error)
	GetListing(ctx context.Context, kind models.Kind, id, userID string) (*models.Listing, error)
}

// Verifier повторная проверка оплаты у провайдера.
type Verifier interface {
	Configured() bool
	Verify(ctx context.Context, ref string) (paymentprovider.Verification, error)
}

// Capturer провайдер, у которого одобренный заказ нужно отдельно списать.
type Capturer interface {
	Verifier
	Capture(ctx context.Context, orderID string) error
}

// Cache кеш проверки доступа.
type Cache interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// DirectRequest прямой вызов активации клиентом после возврата с оплаты.
type DirectRequest struct {
	UserID          string
	StripeSessionID string
	PayPalOrderID   string
	DraftID         string
	Kind            models.Kind
	SlotID          int
	DurationDays    int
}

// Service активация черновиков.
type Service struct {
	repo     Repository
	stripe   Verifier
	paypal   Capturer
	notifier notification.Notifier
	cache    Cache
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, stripe Verifier, paypal Capturer, notifier notification.Notifier,
	cache Cache, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		stripe:   stripe,
		paypal:   paypal,
		notifier: notifier,
		cache:    cache,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func source(a models.Activation) string {
	if a.RequirePending {
		return "webhook"
	}
	return "direct"
}

func resultLabel(err error) string {
	var capErr *models.CapacityExceededError
	switch {
	case err == nil:
		return "activated"
	case errors.Is(err, models.ErrAlreadyActive):
		return "already_active"
	case errors.As(err, &capErr):
		return "capacity_exceeded"
	case errors.Is(err, models.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, models.ErrNoPendingPurchase):
		return "unmatched"
	case errors.Is(err, models.ErrPaymentNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func validate(a models.Activation) error {
	if a.UserID == "" {
		return fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	if _, err := slots.Lookup(a.SlotID); err != nil {
		return err
	}
	if a.DraftID == "" {
		return nil
	}
	if err := slots.Accepts(a.SlotID, a.Kind); err != nil {
		return err
	}
	return drafts.ValidID(a.DraftID)
}

// Activate активирует черновик и покупку. Повторная доставка того же платежа
// возвращает прежний результат с Transitioned=false и без ошибки.
func (s *Service) Activate(ctx context.Context, a models.Activation) (models.ActivationResult, error) {
	const op = "activation.Activate"
	log := s.log.With(slog.String("op", op), slog.String("source", source(a)))

	if err := validate(a); err != nil {
		s.metrics.Activation(source(a), resultLabel(err))
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if a.Now.IsZero() {
		a.Now = s.now()
	}

	res, err := s.repo.ActivateDraft(ctx, a)
	s.metrics.Activation(source(a), resultLabel(err))
	if errors.Is(err, models.ErrAlreadyActive) {
		log.Info("purchase already active", slog.String("purchase_id", res.PurchaseID))
		res.Transitioned = false
		return res, nil
	}
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("draft activated",
		slog.String("purchase_id", res.PurchaseID),
		slog.String("draft_id", res.DraftID),
		slog.Int("slot_id", res.SlotID),
	)
	s.afterTransition(ctx, res)
	return res, nil
}

// ActivateDirect активирует черновик по ссылке на платёж, которую клиент получил
// при возврате с оплаты. Оплата перепроверяется у провайдера. Если провайдер временно
// недоступен, активируется только уже известная ожидающая покупка вызывающего с этой
// ссылкой, а срок берётся из её пакета. Любой другой исход проверки даёт ErrPaymentNotConfirmed.
func (s *Service) ActivateDirect(ctx context.Context, req DirectRequest) (models.ActivationResult, error) {
	const op = "activation.ActivateDirect"

	provider, ref, verifier, err := s.pickProvider(req)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if req.DraftID == "" {
		return models.ActivationResult{}, fmt.Errorf("%s: %w: draft id is required", op, models.ErrValidation)
	}
	if req.DurationDays <= 0 {
		return models.ActivationResult{}, fmt.Errorf("%s: %w: duration must be positive", op, models.ErrValidation)
	}

	c, err := s.verify(ctx, provider, ref, verifier, req)
	if err != nil {
		s.metrics.Activation("direct", "not_confirmed")
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	a := models.Activation{
		UserID:         req.UserID,
		DraftID:        req.DraftID,
		Kind:           req.Kind,
		SlotID:         req.SlotID,
		DurationDays:   req.DurationDays,
		Provider:       provider,
		TransactionRef: ref,
	}
	switch {
	case !c.confirmed:
		a.DurationDays = 0
		a.RequireKnownRef = true
	case c.meta != nil:
		if c.meta.DurationDays > 0 {
			a.DurationDays = c.meta.DurationDays
		}
		a.PackageID = c.meta.PackageID
	}
	return s.Activate(ctx, a)
}

func (s *Service) pickProvider(req DirectRequest) (models.Provider, string, Verifier, error) {
	switch {
	case req.StripeSessionID != "" && req.PayPalOrderID != "":
		return "", "", nil, fmt.Errorf("%w: only one payment reference is allowed", models.ErrValidation)
	case req.StripeSessionID != "":
		return models.ProviderStripe, req.StripeSessionID, s.stripe, nil
	case req.PayPalOrderID != "":
		return models.ProviderPayPal, req.PayPalOrderID, s.paypal, nil
	default:
		return "", "", nil, fmt.Errorf("%w: payment reference is required", models.ErrValidation)
	}
}

// confirmation итог перепроверки оплаты. confirmed=false означает, что провайдер
// был недоступен и оплата не подтверждена, но и не опровергнута.
type confirmation struct {
	confirmed bool
	meta      *paymentmeta.Metadata
}

func (s *Service) verify(ctx context.Context, provider models.Provider, ref string, verifier Verifier, req DirectRequest) (confirmation, error) {
	const op = "activation.verify"
	log := s.log.With(slog.String("op", op), slog.String("provider", string(provider)))
	if provider == models.ProviderStripe {
		log = log.With(sl.Correlation("", "", ref))
	} else {
		log = log.With(sl.Correlation("", ref, ""))
	}

	if verifier == nil || !verifier.Configured() {
		log.Warn("direct activation rejected, provider is not configured")
		return confirmation{}, fmt.Errorf("%w: %v", models.ErrPaymentNotConfirmed, models.ErrProviderNotConfigured)
	}
	v, err := verifier.Verify(ctx, ref)
	if errors.Is(err, models.ErrProviderUnavailable) {
		log.Warn("payment verification unavailable, falling back to known purchase", sl.Err(err))
		return confirmation{}, nil
	}
	if err != nil {
		log.Warn("payment verification failed", sl.Err(err))
		return confirmation{}, fmt.Errorf("%w: %v", models.ErrPaymentNotConfirmed, err)
	}

	var meta *paymentmeta.Metadata
	if v.MetaErr == nil {
		meta = &v.Meta
		if v.Meta.UserID != "" && v.Meta.UserID != req.UserID {
			return confirmation{}, models.ErrNotOwner
		}
		if v.Meta.SlotID > 0 && v.Meta.SlotID != req.SlotID {
			return confirmation{}, fmt.Errorf("%w: payment was made for slot %d", models.ErrPaymentNotConfirmed, v.Meta.SlotID)
		}
	}

	switch v.State {
	case paymentprovider.StatePaid:
		return confirmation{confirmed: true, meta: meta}, nil
	case paymentprovider.StateApproved:
		if provider != models.ProviderPayPal || s.paypal == nil {
			return confirmation{}, models.ErrPaymentNotConfirmed
		}
		return s.capture(ctx, log, ref, meta)
	default:
		return confirmation{}, models.ErrPaymentNotConfirmed
	}
}

// capture списывает одобренный заказ PayPal. Если списание отклонено, заказ
// перепроверяется: его мог уже списать обработчик вебхука.
func (s *Service) capture(ctx context.Context, log *slog.Logger, ref string, meta *paymentmeta.Metadata) (confirmation, error) {
	err := s.paypal.Capture(ctx, ref)
	if err == nil {
		return confirmation{confirmed: true, meta: meta}, nil
	}
	if errors.Is(err, models.ErrProviderUnavailable) {
		log.Warn("capture unavailable, falling back to known purchase", sl.Err(err))
		return confirmation{}, nil
	}
	v, verr := s.paypal.Verify(ctx, ref)
	if verr == nil && v.State == paymentprovider.StatePaid {
		return confirmation{confirmed: true, meta: meta}, nil
	}
	log.Warn("approved order was not captured", sl.Err(err))
	return confirmation{}, fmt.Errorf("%w: %v", models.ErrPaymentNotConfirmed, err)
}

// Publish публикует черновик без оплаты в момент публикации: в бесплатном слоте
// или по уже оплаченной покупке слота.
func (s *Service) Publish(ctx context.Context, kind models.Kind, draftID, userID string) (models.ActivationResult, error) {
	const op = "activation.Publish"
	log := s.log.With(slog.String("op", op))

	if !kind.Valid() {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}
	if err := drafts.ValidID(draftID); err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	listing, err := s.repo.GetListing(ctx, kind, draftID, userID)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if listing.SlotID == nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w: draft has no slot", op, models.ErrValidation)
	}
	now := s.now()
	if listing.IsLive(now) {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, models.ErrDraftActive)
	}
	slotID := *listing.SlotID
	if err := slots.Accepts(slotID, kind); err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.repo.PublishDraft(ctx, models.Publication{
		UserID:  userID,
		DraftID: draftID,
		Kind:    kind,
		SlotID:  slotID,
		Free:    slots.IsFree(slotID),
		Now:     now,
	})
	s.metrics.Activation("publish", resultLabel(err))
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("draft published", slog.String("draft_id", draftID), slog.Int("slot_id", slotID))
	s.afterTransition(ctx, res)
	return res, nil
}

// afterTransition уведомляет пользователя и сбрасывает кеш доступа.
// Ошибки только логируются: активация уже зафиксирована.
func (s *Service) afterTransition(ctx context.Context, res models.ActivationResult) {
	log := s.log.With(slog.String("op", "activation.afterTransition"))
	if err := s.notifier.Notify(ctx, rabbitmq.RoutingSlotActivated, notification.Activated(res)); err != nil {
		log.Error("failed to send activation notification", slog.String("purchase_id", res.PurchaseID), sl.Err(err))
	}
	if err := s.cache.Invalidate(ctx, access.CacheKey(res.UserID, res.SlotID)); err != nil {
		log.Warn("failed to invalidate access cache", sl.Err(err))
	}
}
