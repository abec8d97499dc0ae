// Package webhook обрабатывает вебхуки Stripe и PayPal: проверка подписи, дедупликация,
// журнал аудита и активация через сервис активации.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/metrics"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
	"github.com/junaidookay/mu-online-hub/internal/paymentprovider"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

// Repository дедупликация событий, аудит и поиск контекста покупки.
type Repository interface {
	ClaimWebhookEvent(ctx context.Context, provider models.Provider, eventID, eventType string) (bool, error)
	FinishWebhookEvent(ctx context.Context, provider models.Provider, eventID, procErr string) error
	InsertPayment(ctx context.Context, rec models.PaymentRecord) (int64, error)
	ClosePendingPurchase(ctx context.Context, ref string, status models.PurchaseStatus) (bool, error)
	GetPurchase(ctx context.Context, id string) (*models.SlotPurchase, error)
	GetPackage(ctx context.Context, id string) (*models.PricingPackage, error)
}

// Activator сервис активации.
type Activator interface {
	Activate(ctx context.Context, a models.Activation) (models.ActivationResult, error)
}

// StripeEvents разбор и проверка событий Stripe.
type StripeEvents interface {
	WebhookConfigured() bool
	ParseEvent(payload []byte, signature string) (paymentprovider.Event, error)
	DecodeUnverified(payload []byte) (paymentprovider.Event, error)
}

// PayPalEvents разбор и проверка событий PayPal.
type PayPalEvents interface {
	WebhookConfigured() bool
	VerifyWebhook(ctx context.Context, r *http.Request, body []byte) error
	ParseEvent(body []byte) (paymentprovider.Event, error)
	Capture(ctx context.Context, orderID string) error
}

// Outcome итог обработки события.
type Outcome struct {
	EventID    string
	Status     models.PaymentStatus
	Duplicate  bool
	Activation *models.ActivationResult
}

// Service обработчик вебхуков.
type Service struct {
	repo       Repository
	activator  Activator
	stripe     StripeEvents
	paypal     PayPalEvents
	feePercent float64
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func NewService(repo Repository, activator Activator, stripe StripeEvents, paypal PayPalEvents,
	feePercent float64, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		activator:  activator,
		stripe:     stripe,
		paypal:     paypal,
		feePercent: feePercent,
		metrics:    m,
		log:        log,
	}
}

// HandleStripe обрабатывает событие Stripe. Ошибка с models.ErrSignatureInvalid
// означает отказ без обработки, любая другая ошибка требует повтора доставки.
func (s *Service) HandleStripe(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	const op = "webhook.HandleStripe"

	if !s.stripe.WebhookConfigured() {
		evt, err := s.stripe.DecodeUnverified(payload)
		if err != nil {
			evt = paymentprovider.Event{Payload: payload, MetaErr: err}
		}
		return s.recordUnverified(ctx, models.ProviderStripe, evt)
	}

	evt, err := s.stripe.ParseEvent(payload, signature)
	if err != nil {
		s.metrics.Webhook(string(models.ProviderStripe), "rejected")
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.process(ctx, models.ProviderStripe, evt, s.handleStripeEvent)
}

// HandlePayPal обрабатывает событие PayPal. Тело запроса уже прочитано в body.
func (s *Service) HandlePayPal(ctx context.Context, r *http.Request, body []byte) (Outcome, error) {
	const op = "webhook.HandlePayPal"

	if !s.paypal.WebhookConfigured() {
		evt, err := s.paypal.ParseEvent(body)
		if err != nil {
			evt = paymentprovider.Event{Payload: body, MetaErr: err}
		}
		return s.recordUnverified(ctx, models.ProviderPayPal, evt)
	}

	if err := s.paypal.VerifyWebhook(ctx, r, body); err != nil {
		if !errors.Is(err, models.ErrProviderUnavailable) && !errors.Is(err, models.ErrSignatureInvalid) {
			err = fmt.Errorf("%w: %v", models.ErrSignatureInvalid, err)
		}
		s.metrics.Webhook(string(models.ProviderPayPal), "rejected")
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}
	evt, err := s.paypal.ParseEvent(body)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.process(ctx, models.ProviderPayPal, evt, s.handlePayPalEvent)
}

type eventHandler func(ctx context.Context, evt paymentprovider.Event) (Outcome, error)

// process дедуплицирует событие по (provider, event_id). Событие, обработка которого
// завершилась ошибкой, остаётся незавершённым и будет обработано при повторной доставке.
func (s *Service) process(ctx context.Context, provider models.Provider, evt paymentprovider.Event, handle eventHandler) (Outcome, error) {
	const op = "webhook.process"
	log := s.log.With(
		slog.String("op", op),
		slog.String("provider", string(provider)),
		slog.String("event_type", evt.Type),
		sl.Correlation(evt.ID, evt.Ref, ""),
	)

	claimed, err := s.repo.ClaimWebhookEvent(ctx, provider, evt.ID, evt.Type)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}
	if !claimed {
		log.Info("duplicate webhook event skipped")
		s.metrics.Webhook(string(provider), "duplicate")
		return Outcome{EventID: evt.ID, Duplicate: true}, nil
	}

	out, herr := handle(ctx, evt)
	procErr := ""
	if herr != nil {
		procErr = herr.Error()
	}
	if err := s.repo.FinishWebhookEvent(ctx, provider, evt.ID, procErr); err != nil {
		log.Error("failed to finish webhook event", sl.Err(err))
	}
	if herr != nil {
		log.Error("webhook processing failed", sl.Err(herr))
		s.metrics.Webhook(string(provider), "error")
		return Outcome{}, fmt.Errorf("%s: %w", op, herr)
	}

	out.EventID = evt.ID
	s.metrics.Webhook(string(provider), string(out.Status))
	log.Info("webhook processed", slog.String("status", string(out.Status)))
	return out, nil
}

func (s *Service) handleStripeEvent(ctx context.Context, evt paymentprovider.Event) (Outcome, error) {
	switch evt.Type {
	case paymentprovider.StripeSessionCompleted, paymentprovider.StripeAsyncPaymentSucceeded:
		if evt.State != paymentprovider.StatePaid {
			// асинхронный платёж: активация придёт с async_payment_succeeded
			return s.audit(ctx, models.ProviderStripe, evt, models.PaymentIgnored)
		}
		return s.activate(ctx, models.ProviderStripe, evt)
	case paymentprovider.StripeAsyncPaymentFailed, paymentprovider.StripeSessionExpired:
		status := models.PurchaseFailed
		if evt.Type == paymentprovider.StripeSessionExpired {
			status = models.PurchaseExpired
		}
		if _, err := s.repo.ClosePendingPurchase(ctx, evt.Ref, status); err != nil {
			return Outcome{}, err
		}
		return s.audit(ctx, models.ProviderStripe, evt, models.PaymentFailed)
	default:
		s.log.Debug("unhandled stripe event", slog.String("event_type", evt.Type))
		return s.audit(ctx, models.ProviderStripe, evt, models.PaymentIgnored)
	}
}

func (s *Service) handlePayPalEvent(ctx context.Context, evt paymentprovider.Event) (Outcome, error) {
	switch evt.Type {
	case paymentprovider.PayPalOrderApproved:
		// временная недоступность не блокирует: заказ одобрен и подпись проверена
		if err := s.paypal.Capture(ctx, evt.Ref); err != nil {
			log := s.log.With(slog.String("op", "webhook.handlePayPalEvent"), sl.Correlation(evt.ID, evt.Ref, ""))
			if !errors.Is(err, models.ErrProviderUnavailable) {
				log.Warn("capture of approved order declined", sl.Err(err))
				return s.audit(ctx, models.ProviderPayPal, evt, models.PaymentFailed)
			}
			log.Warn("capture unavailable, activating approved order", sl.Err(err))
		}
		return s.activate(ctx, models.ProviderPayPal, evt)
	case paymentprovider.PayPalCaptureComplete:
		return s.activate(ctx, models.ProviderPayPal, evt)
	default:
		s.log.Debug("unhandled paypal event", slog.String("event_type", evt.Type))
		return s.audit(ctx, models.ProviderPayPal, evt, models.PaymentIgnored)
	}
}

// activate восстанавливает контекст покупки из метаданных и вызывает активацию.
// Несопоставленный платёж записывается в аудит как unmatched и ошибкой не считается.
func (s *Service) activate(ctx context.Context, provider models.Provider, evt paymentprovider.Event) (Outcome, error) {
	log := s.log.With(slog.String("op", "webhook.activate"), sl.Correlation(evt.ID, evt.Ref, ""))

	if evt.MetaErr != nil || !evt.Meta.Resolvable() {
		log.Warn("payment metadata is not parseable", slog.Any("meta_err", evt.MetaErr))
		return s.audit(ctx, provider, evt, models.PaymentUnmatched)
	}
	a, err := s.activationFor(ctx, provider, evt)
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrPackageNotFound) {
		log.Warn("payment references unknown purchase or package", sl.Err(err))
		return s.audit(ctx, provider, evt, models.PaymentUnmatched)
	}
	if err != nil {
		return Outcome{}, err
	}

	res, err := s.activator.Activate(ctx, a)
	var capErr *models.CapacityExceededError
	switch {
	case err == nil && res.Transitioned:
		out, aerr := s.audit(ctx, provider, evt, models.PaymentActivated)
		out.Activation = &res
		return out, aerr
	case err == nil:
		out, aerr := s.audit(ctx, provider, evt, models.PaymentIgnored)
		out.Activation = &res
		return out, aerr
	case errors.As(err, &capErr):
		log.Error("payment received for a full slot, needs manual review", sl.Err(err))
		return s.audit(ctx, provider, evt, models.PaymentFailed)
	case errors.Is(err, models.ErrNoPendingPurchase),
		errors.Is(err, models.ErrNotOwner),
		errors.Is(err, models.ErrValidation):
		log.Warn("payment not matched to a draft", sl.Err(err))
		return s.audit(ctx, provider, evt, models.PaymentUnmatched)
	default:
		return Outcome{}, err
	}
}

func (s *Service) activationFor(ctx context.Context, provider models.Provider, evt paymentprovider.Event) (models.Activation, error) {
	m := evt.Meta
	a := models.Activation{
		UserID:         m.UserID,
		SlotID:         m.SlotID,
		DraftID:        m.DraftID,
		Kind:           m.DraftType,
		DurationDays:   m.DurationDays,
		PackageID:      m.PackageID,
		Provider:       provider,
		TransactionRef: evt.Ref,
		RequirePending: true,
	}
	switch m.Type {
	case paymentmeta.TypeListing:
		if _, err := uuid.Parse(m.PackageID); err != nil {
			return a, models.ErrPackageNotFound
		}
		pkg, err := s.repo.GetPackage(ctx, m.PackageID)
		if err != nil {
			return a, err
		}
		a.SlotID, a.DurationDays, a.PackageID = pkg.SlotID, pkg.DurationDays, pkg.ID
	case paymentmeta.TypePurchase:
		if _, err := uuid.Parse(m.PurchaseID); err != nil {
			return a, models.ErrNotFound
		}
		p, err := s.repo.GetPurchase(ctx, m.PurchaseID)
		if err != nil {
			return a, err
		}
		a.UserID, a.SlotID = p.UserID, p.SlotID
		if p.DraftID != nil {
			a.DraftID = *p.DraftID
		}
		if p.DraftType != nil {
			a.Kind = *p.DraftType
		}
		if p.PackageID != nil {
			a.PackageID = *p.PackageID
		}
	}
	if a.DraftID != "" && a.Kind == "" {
		if slot, ok := slots.Get(a.SlotID); ok {
			a.Kind = slot.Kind
		}
	}
	return a, nil
}

func (s *Service) recordUnverified(ctx context.Context, provider models.Provider, evt paymentprovider.Event) (Outcome, error) {
	s.log.Warn("webhook received but provider is not configured, recorded without processing",
		slog.String("op", "webhook.recordUnverified"),
		slog.String("provider", string(provider)),
		sl.Correlation(evt.ID, evt.Ref, ""),
	)
	out, err := s.audit(ctx, provider, evt, models.PaymentUnverified)
	if err != nil {
		return Outcome{}, err
	}
	out.EventID = evt.ID
	s.metrics.Webhook(string(provider), string(models.PaymentUnverified))
	return out, nil
}

// audit пишет строку журнала платежей с комиссией площадки.
func (s *Service) audit(ctx context.Context, provider models.Provider, evt paymentprovider.Event, status models.PaymentStatus) (Outcome, error) {
	const op = "webhook.audit"
	fee, earnings := models.SplitFee(evt.AmountCents, s.feePercent)
	rec := models.PaymentRecord{
		Provider:            provider,
		ProviderEventID:     evt.ID,
		EventType:           evt.Type,
		TransactionRef:      evt.Ref,
		ProductType:         models.ProductTypeUnknown,
		GrossCents:          evt.AmountCents,
		Currency:            evt.Currency,
		PlatformFeeCents:    fee,
		SellerEarningsCents: earnings,
		Status:              status,
		RawPayload:          evt.Payload,
	}
	if evt.MetaErr == nil {
		rec.ProductType = evt.Meta.ProductType()
		if evt.Meta.UserID != "" {
			user := evt.Meta.UserID
			rec.UserID = &user
		}
		if evt.Meta.SlotID > 0 {
			slot := evt.Meta.SlotID
			rec.SlotID = &slot
		}
	}
	if _, err := s.repo.InsertPayment(ctx, rec); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return Outcome{Status: status}, nil
}
