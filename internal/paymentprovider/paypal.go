package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/plutov/paypal/v4"

	"github.com/junaidookay/mu-online-hub/internal/config"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
)

// Типы событий PayPal, которые обрабатывает площадка.
const (
	PayPalOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	PayPalCaptureComplete = "PAYMENT.CAPTURE.COMPLETED"
)

const brandName = "MU Online Hub"

// PayPal адаптер PayPal Orders API v2.
type PayPal struct {
	client *paypal.Client
	cfg    config.PayPalConfig
}

// NewPayPal создаёт адаптер. Без учётных данных возвращается ненастроенный адаптер.
func NewPayPal(cfg config.PayPalConfig) (*PayPal, error) {
	const op = "paymentprovider.NewPayPal"
	p := &PayPal{cfg: cfg}
	if !cfg.Configured() {
		return p, nil
	}
	c, err := paypal.NewClient(cfg.ClientID, cfg.Secret, cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.client = c
	return p, nil
}

func (p *PayPal) Name() models.Provider { return models.ProviderPayPal }

func (p *PayPal) Configured() bool { return p.client != nil }

// WebhookConfigured сообщает, включена ли проверка подписи вебхуков.
func (p *PayPal) WebhookConfigured() bool { return p.Configured() && p.cfg.WebhookID != "" }

// CreateCheckout создаёт заказ с intent=CAPTURE и возвращает ссылку approve.
func (p *PayPal) CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error) {
	const op = "paymentprovider.PayPal.CreateCheckout"
	if !p.Configured() {
		return Session{}, fmt.Errorf("%s: %w", op, models.ErrProviderNotConfigured)
	}
	customID, err := paymentmeta.EncodeCustomID(req.Meta)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	units := []paypal.PurchaseUnitRequest{
		{
			Amount: &paypal.PurchaseUnitAmount{
				Currency: strings.ToUpper(req.Currency),
				Value:    formatCents(req.AmountCents),
			},
			Description: req.ProductName,
			CustomID:    customID,
		},
	}
	appCtx := &paypal.ApplicationContext{
		BrandName: brandName,
		ReturnURL: req.SuccessURL,
		CancelURL: req.CancelURL,
	}
	order, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return Session{}, paypalError(op, err)
	}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return Session{Provider: models.ProviderPayPal, ID: order.ID, URL: link.Href}, nil
		}
	}
	return Session{}, fmt.Errorf("%s: order %s has no approve link", op, order.ID)
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalUnit struct {
	CustomID string        `json:"custom_id"`
	Amount   *paypalAmount `json:"amount"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	PurchaseUnits []paypalUnit `json:"purchase_units"`
}

// Verify запрашивает заказ и определяет состояние оплаты.
func (p *PayPal) Verify(ctx context.Context, orderID string) (Verification, error) {
	const op = "paymentprovider.PayPal.Verify"
	if !p.Configured() {
		return Verification{}, fmt.Errorf("%s: %w", op, models.ErrProviderNotConfigured)
	}
	req, err := p.client.NewRequest(ctx, http.MethodGet,
		fmt.Sprintf("%s/v2/checkout/orders/%s", p.client.APIBase, orderID), nil)
	if err != nil {
		return Verification{}, fmt.Errorf("%s: %w", op, err)
	}
	var order paypalOrder
	if err := p.client.SendWithAuth(req, &order); err != nil {
		return Verification{}, paypalError(op, err)
	}
	v := Verification{Ref: order.ID, State: orderState(order.Status)}
	if len(order.PurchaseUnits) == 0 {
		v.MetaErr = paymentmeta.ErrUnparseable
		return v, nil
	}
	unit := order.PurchaseUnits[0]
	v.Meta, v.MetaErr = paymentmeta.DecodeCustomID(unit.CustomID)
	if unit.Amount != nil {
		v.Currency = unit.Amount.CurrencyCode
		v.AmountCents, _ = parseCents(unit.Amount.Value)
	}
	return v, nil
}

// Capture списывает одобренный заказ.
func (p *PayPal) Capture(ctx context.Context, orderID string) error {
	const op = "paymentprovider.PayPal.Capture"
	if !p.Configured() {
		return fmt.Errorf("%s: %w", op, models.ErrProviderNotConfigured)
	}
	if _, err := p.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{}); err != nil {
		return paypalError(op, err)
	}
	return nil
}

// VerifyWebhook проверяет подпись через verify-webhook-signature.
// Тело запроса уже прочитано, поэтому передаётся отдельно.
func (p *PayPal) VerifyWebhook(ctx context.Context, r *http.Request, body []byte) error {
	const op = "paymentprovider.PayPal.VerifyWebhook"
	req := r.Clone(ctx)
	req.Body = io.NopCloser(bytes.NewReader(body))
	res, err := p.client.VerifyWebhookSignature(ctx, req, p.cfg.WebhookID)
	if err != nil {
		return paypalError(op, err)
	}
	if res.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%s: %w: status %s", op, models.ErrSignatureInvalid, res.VerificationStatus)
	}
	return nil
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string        `json:"id"`
		Status            string        `json:"status"`
		CustomID          string        `json:"custom_id"`
		Amount            *paypalAmount `json:"amount"`
		PurchaseUnits     []paypalUnit  `json:"purchase_units"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// ParseEvent разбирает тело вебхука PayPal. Для CAPTURE.COMPLETED ссылкой служит
// id заказа из supplementary_data, чтобы совпасть со ссылкой, сохранённой при оформлении.
func (p *PayPal) ParseEvent(body []byte) (Event, error) {
	const op = "paymentprovider.PayPal.ParseEvent"
	var raw paypalEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("%s: %w: %v", op, ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.EventType == "" {
		return Event{}, fmt.Errorf("%s: %w: missing id or event_type", op, ErrMalformedEvent)
	}
	evt := Event{ID: raw.ID, Type: raw.EventType, State: StateUnknown, Payload: body}
	var (
		customID string
		amount   *paypalAmount
	)
	switch raw.EventType {
	case PayPalOrderApproved:
		evt.Ref = raw.Resource.ID
		evt.State = StateApproved
		if len(raw.Resource.PurchaseUnits) > 0 {
			customID = raw.Resource.PurchaseUnits[0].CustomID
			amount = raw.Resource.PurchaseUnits[0].Amount
		}
	case PayPalCaptureComplete:
		evt.CaptureID = raw.Resource.ID
		evt.Ref = raw.Resource.SupplementaryData.RelatedIDs.OrderID
		if evt.Ref == "" {
			evt.Ref = raw.Resource.ID
		}
		evt.State = StatePaid
		customID = raw.Resource.CustomID
		amount = raw.Resource.Amount
	default:
		return evt, nil
	}
	evt.Meta, evt.MetaErr = paymentmeta.DecodeCustomID(customID)
	if amount != nil {
		evt.Currency = amount.CurrencyCode
		evt.AmountCents, _ = parseCents(amount.Value)
	}
	return evt, nil
}

func orderState(status string) State {
	switch status {
	case "COMPLETED":
		return StatePaid
	case "APPROVED":
		return StateApproved
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED", "VOIDED":
		return StateUnpaid
	default:
		return StateUnknown
	}
}

// paypalError 5xx, 429 и сетевые ошибки считаются временной недоступностью.
func paypalError(op string, err error) error {
	var er *paypal.ErrorResponse
	if errors.As(err, &er) && er.Response != nil &&
		er.Response.StatusCode < 500 && er.Response.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}
