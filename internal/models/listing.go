// Package models содержит доменные структуры площадки: объявления (черновики),
// пакеты цен, покупки слотов, аудит платежей и уведомления,
// а также типизированные ошибки, общие для сервисов и HTTP-слоя.
package models

import (
	"encoding/json"
	"time"
)

// Kind тип сущности, которую можно разместить в слоте.
type Kind string

const (
	KindServer        Kind = "server"
	KindAdvertisement Kind = "advertisement"
	KindTextServer    Kind = "text_server"
	KindBanner        Kind = "banner"
	KindPromo         Kind = "promo"
)

// kindTables таблица диспетчеризации: тип сущности -> таблица в базе.
var kindTables = map[Kind]string{
	KindServer:        "servers",
	KindAdvertisement: "advertisements",
	KindTextServer:    "premium_text_servers",
	KindBanner:        "premium_banners",
	KindPromo:         "rotating_promos",
}

// Kinds возвращает все типы сущностей в фиксированном порядке.
func Kinds() []Kind {
	return []Kind{KindServer, KindAdvertisement, KindTextServer, KindBanner, KindPromo}
}

// ParseKind разбирает тип сущности, пришедший из запроса или метаданных платежа.
// Поддерживаются также имена таблиц, которые использовались в старых метаданных.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindTables[k]; ok {
		return k, nil
	}
	for kind, table := range kindTables {
		if table == s {
			return kind, nil
		}
	}
	return "", ErrUnknownKind
}

// Table возвращает имя таблицы для типа сущности.
func (k Kind) Table() string {
	return kindTables[k]
}

// Valid сообщает, известен ли тип.
func (k Kind) Valid() bool {
	_, ok := kindTables[k]
	return ok
}

// Status хранимый статус объявления.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusActive         Status = "active"
	StatusExpired        Status = "expired"
)

// Listing общая модель строки во всех пяти таблицах объявлений.
// Объявление с IsActive=false это черновик и не занимает место в слоте.
type Listing struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	UserID      string          `json:"user_id"`
	SlotID      *int            `json:"slot_id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	WebsiteURL  string          `json:"website_url"`
	ImageURL    string          `json:"image_url"`
	Details     json.RawMessage `json:"details,omitempty"`
	Status      Status          `json:"status"`
	IsActive    bool            `json:"is_active"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EffectiveStatus вычисляет статус на момент now: активное объявление
// с истёкшим сроком считается истёкшим ещё до того, как его обработает фоновая очистка.
func (l *Listing) EffectiveStatus(now time.Time) Status {
	if l.Status == StatusActive && l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return StatusExpired
	}
	return l.Status
}

// IsLive сообщает, занимает ли объявление место в слоте.
func (l *Listing) IsLive(now time.Time) bool {
	return l.IsActive && l.SlotID != nil && (l.ExpiresAt == nil || l.ExpiresAt.After(now))
}

// ListingFields редактируемые пользователем поля черновика.
type ListingFields struct {
	SlotID      *int            `json:"slot_id,omitempty"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=10000"`
	WebsiteURL  string          `json:"website_url" validate:"omitempty,url"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// DraftSummary элемент списка черновиков и объявлений пользователя.
type DraftSummary struct {
	Listing
	IsDraft bool `json:"is_draft"`
}
