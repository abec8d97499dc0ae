package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/junaidookay/mu-online-hub/internal/config"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
)

// Типы событий Stripe, которые обрабатывает площадка.
const (
	StripeSessionCompleted      = "checkout.session.completed"
	StripeAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	StripeAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	StripeSessionExpired        = "checkout.session.expired"
)

// Stripe адаптер Stripe Checkout.
type Stripe struct {
	api *client.API
	cfg config.StripeConfig
}

// NewStripe создаёт адаптер. backends == nil означает боевые адреса Stripe.
func NewStripe(cfg config.StripeConfig, backends *stripe.Backends) *Stripe {
	s := &Stripe{cfg: cfg}
	if cfg.Configured() {
		s.api = &client.API{}
		s.api.Init(cfg.SecretKey, backends)
	}
	return s
}

func (s *Stripe) Name() models.Provider { return models.ProviderStripe }

func (s *Stripe) Configured() bool { return s.api != nil }

// WebhookConfigured сообщает, задан ли секрет подписи вебхуков.
func (s *Stripe) WebhookConfigured() bool { return s.cfg.WebhookConfigured() }

// CreateCheckout создаёт Checkout Session с метаданными покупки.
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error) {
	const op = "paymentprovider.Stripe.CreateCheckout"
	if !s.Configured() {
		return Session{}, fmt.Errorf("%s: %w", op, models.ErrProviderNotConfigured)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Meta.LegacyRef()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range paymentmeta.ToStripe(req.Meta) {
		params.AddMetadata(k, v)
	}
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, stripeError(op, err)
	}
	return Session{Provider: models.ProviderStripe, ID: sess.ID, URL: sess.URL}, nil
}

// Verify запрашивает Checkout Session и определяет состояние оплаты.
func (s *Stripe) Verify(ctx context.Context, sessionID string) (Verification, error) {
	const op = "paymentprovider.Stripe.Verify"
	if !s.Configured() {
		return Verification{}, fmt.Errorf("%s: %w", op, models.ErrProviderNotConfigured)
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return Verification{}, stripeError(op, err)
	}
	v := Verification{
		Ref:         sess.ID,
		State:       sessionState(sess),
		AmountCents: sess.AmountTotal,
		Currency:    string(sess.Currency),
	}
	v.Meta, v.MetaErr = paymentmeta.FromStripe(sess.Metadata, sess.ClientReferenceID)
	return v, nil
}

// ParseEvent проверяет подпись Stripe-Signature и разбирает событие.
func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	const op = "paymentprovider.Stripe.ParseEvent"
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, s.cfg.WebhookSecret, webhook.DefaultTolerance); err != nil {
		return Event{}, fmt.Errorf("%s: %w: %v", op, models.ErrSignatureInvalid, err)
	}
	return decodeStripeEvent(op, payload)
}

// DecodeUnverified разбирает событие без проверки подписи. Используется только для
// журнала аудита, когда секрет вебхука не настроен.
func (s *Stripe) DecodeUnverified(payload []byte) (Event, error) {
	const op = "paymentprovider.Stripe.DecodeUnverified"
	return decodeStripeEvent(op, payload)
}

// decodeStripeEvent разбирает тело события. Подпись к этому моменту уже проверена
// или не проверяется вовсе, поэтому любая ошибка здесь означает битое тело.
func decodeStripeEvent(op string, payload []byte) (Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("%s: %w: %v", op, ErrMalformedEvent, err)
	}
	return stripeEvent(op, evt, payload)
}

func stripeEvent(op string, evt stripe.Event, payload []byte) (Event, error) {
	if evt.ID == "" || evt.Type == "" {
		return Event{}, fmt.Errorf("%s: %w: missing id or type", op, ErrMalformedEvent)
	}
	res := Event{ID: evt.ID, Type: string(evt.Type), State: StateUnknown, Payload: payload}
	if !strings.HasPrefix(res.Type, "checkout.session.") {
		return res, nil
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return Event{}, fmt.Errorf("%s: %w: missing data.object", op, ErrMalformedEvent)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
		return Event{}, fmt.Errorf("%s: %w: %v", op, ErrMalformedEvent, err)
	}
	res.Ref = sess.ID
	res.State = sessionState(&sess)
	res.AmountCents = sess.AmountTotal
	res.Currency = string(sess.Currency)
	res.Meta, res.MetaErr = paymentmeta.FromStripe(sess.Metadata, sess.ClientReferenceID)
	return res, nil
}

func sessionState(sess *stripe.CheckoutSession) State {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return StatePaid
	case sess.Status == stripe.CheckoutSessionStatusExpired,
		sess.Status == stripe.CheckoutSessionStatusOpen:
		return StateUnpaid
	default:
		// complete + unpaid: асинхронный платёж ещё обрабатывается
		return StateUnknown
	}
}

// stripeError 5xx, 429 и сетевые ошибки считаются временной недоступностью.
func stripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode > 0 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429 {
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}
