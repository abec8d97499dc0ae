package models

import "time"

// Provider платёжный провайдер.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
	ProviderFree   Provider = "free"
)

// PricingPackage пакет размещения: длительность и цена для конкретного слота.
// Цена не меняется после того, как на пакет сослалась хотя бы одна покупка.
type PricingPackage struct {
	ID           string `json:"id"`
	SlotID       int    `json:"slot_id"`
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	DurationDays int    `json:"duration_days"`
	IsActive     bool   `json:"is_active"`
	DisplayOrder int    `json:"display_order"`
}

// IsFree сообщает, что пакет не требует оплаты.
func (p *PricingPackage) IsFree() bool {
	return p.PriceCents == 0
}

// PurchaseStatus статус записи в журнале покупок.
type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchaseActive  PurchaseStatus = "active"
	PurchaseExpired PurchaseStatus = "expired"
	PurchaseFailed  PurchaseStatus = "failed"
)

// SlotPurchase запись журнала аренды слота.
type SlotPurchase struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	SlotID         int            `json:"slot_id"`
	PackageID      *string        `json:"package_id,omitempty"`
	DraftID        *string        `json:"draft_id,omitempty"`
	DraftType      *Kind          `json:"draft_type,omitempty"`
	Provider       Provider       `json:"provider"`
	TransactionRef *string        `json:"transaction_ref,omitempty"`
	Status         PurchaseStatus `json:"status"`
	IsActive       bool           `json:"is_active"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ActiveAt сообщает, действует ли покупка в момент now.
func (p *SlotPurchase) ActiveAt(now time.Time) bool {
	return p.IsActive && (p.ExpiresAt == nil || p.ExpiresAt.After(now))
}

// Activation параметры единственной точки активации черновика.
// RequirePending=true для вебхуков: без ожидающей покупки активировать нечего.
// Прямой вызов клиента (RequirePending=false) создаёт или обновляет запись журнала по (user_id, slot_id).
// RequireKnownRef=true, когда провайдер не подтвердил оплату: активировать можно только
// ожидающую покупку вызывающего с этим transaction_ref, срок берётся из её пакета.
type Activation struct {
	UserID          string
	DraftID         string
	Kind            Kind
	SlotID          int
	DurationDays    int
	Provider        Provider
	TransactionRef  string
	PackageID       string
	RequirePending  bool
	RequireKnownRef bool
	Now             time.Time
}

// ActivationResult итог активации. Transitioned=false означает повторную доставку
// уже обработанного платежа: уведомлять пользователя не нужно.
type ActivationResult struct {
	PurchaseID   string
	DraftID      string
	Kind         Kind
	UserID       string
	SlotID       int
	ExpiresAt    *time.Time
	Transitioned bool
}

// Publication публикация черновика без оплаты в момент публикации:
// в бесплатном слоте или по уже оплаченной покупке без привязанного черновика.
type Publication struct {
	UserID  string
	DraftID string
	Kind    Kind
	SlotID  int
	Free    bool
	Now     time.Time
}

// SlotUsage занятость слота на момент запроса.
type SlotUsage struct {
	SlotID          int        `json:"slot_id"`
	Live            int        `json:"live"`
	MaxConcurrent   *int       `json:"max_concurrent,omitempty"`
	NextAvailableAt *time.Time `json:"next_available_at,omitempty"`
}

// Full сообщает, что новых объявлений слот не примет.
func (u SlotUsage) Full() bool {
	return u.MaxConcurrent != nil && u.Live >= *u.MaxConcurrent
}

// ExpiredListing объявление, снятое фоновой очисткой.
type ExpiredListing struct {
	ID        string
	Kind      Kind
	UserID    string
	SlotID    *int
	ExpiresAt time.Time
}
