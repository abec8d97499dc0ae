package models

import (
	"encoding/json"
	"time"
)

// PaymentStatus итог обработки события провайдера для журнала аудита.
type PaymentStatus string

const (
	PaymentActivated  PaymentStatus = "activated"
	PaymentUnmatched  PaymentStatus = "unmatched"
	PaymentIgnored    PaymentStatus = "ignored"
	PaymentUnverified PaymentStatus = "unverified"
	PaymentFailed     PaymentStatus = "failed"
)

// ProductTypeUnknown используется, когда метаданные платежа не удалось разобрать.
const ProductTypeUnknown = "unknown"

// PaymentRecord строка журнала аудита: пишется на каждое полученное событие,
// даже если его не удалось сопоставить с черновиком.
type PaymentRecord struct {
	ID                  int64           `json:"id"`
	Provider            Provider        `json:"provider"`
	ProviderEventID     string          `json:"provider_event_id"`
	EventType           string          `json:"event_type"`
	TransactionRef      string          `json:"transaction_ref"`
	UserID              *string         `json:"user_id,omitempty"`
	SlotID              *int            `json:"slot_id,omitempty"`
	ProductType         string          `json:"product_type"`
	GrossCents          int64           `json:"gross_cents"`
	Currency            string          `json:"currency"`
	PlatformFeeCents    int64           `json:"platform_fee_cents"`
	SellerEarningsCents int64           `json:"seller_earnings_cents"`
	Status              PaymentStatus   `json:"status"`
	RawPayload          json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// SplitFee рассчитывает комиссию площадки и остаток продавцу.
// Комиссия округляется вниз до цента.
func SplitFee(grossCents int64, feePercent float64) (fee, earnings int64) {
	if grossCents <= 0 || feePercent <= 0 {
		return 0, grossCents
	}
	fee = int64(float64(grossCents) * feePercent / 100)
	if fee > grossCents {
		fee = grossCents
	}
	return fee, grossCents - fee
}

// Notification уведомление пользователя внутри приложения.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	IsRead    bool      `json:"is_read"`
	DedupKey  string    `json:"dedup_key"`
	CreatedAt time.Time `json:"created_at"`
}
