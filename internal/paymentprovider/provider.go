// Package paymentprovider адаптеры платёжных провайдеров: Stripe Checkout и PayPal Orders.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
)

// State состояние оплаты по данным провайдера.
type State string

const (
	StatePaid     State = "paid"
	StateApproved State = "approved"
	StateUnpaid   State = "unpaid"
	StateUnknown  State = "unknown"
)

// ErrMalformedEvent тело вебхука не удалось разобрать.
var ErrMalformedEvent = errors.New("malformed webhook event")

// CheckoutRequest параметры сессии оплаты.
type CheckoutRequest struct {
	Meta        paymentmeta.Metadata
	AmountCents int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

// Session созданная у провайдера сессия оплаты.
type Session struct {
	Provider models.Provider
	ID       string
	URL      string
}

// Verification результат повторной проверки платежа через API провайдера.
type Verification struct {
	Ref         string
	State       State
	Meta        paymentmeta.Metadata
	MetaErr     error
	AmountCents int64
	Currency    string
}

// Event разобранное событие вебхука.
// Meta заполнена только когда MetaErr == nil.
type Event struct {
	ID          string
	Type        string
	Ref         string
	CaptureID   string
	State       State
	Meta        paymentmeta.Metadata
	MetaErr     error
	AmountCents int64
	Currency    string
	Payload     []byte
}

// Provider общий контракт адаптеров для оформления и проверки оплаты.
type Provider interface {
	Name() models.Provider
	Configured() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error)
	Verify(ctx context.Context, ref string) (Verification, error)
}

// unavailable помечает ошибку как временную недоступность провайдера.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrProviderUnavailable, err)
}

// parseCents переводит десятичную сумму вида "12.34" в центы.
func parseCents(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", value)
	}
	frac += strings.Repeat("0", 2-len(frac))
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", value, err)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", value, err)
	}
	if units < 0 {
		return 0, fmt.Errorf("negative amount %q", value)
	}
	return units*100 + cents, nil
}

// formatCents обратная операция для API, принимающих сумму строкой.
func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
