// Package paymentmeta кодирует контекст покупки в метаданные платёжных провайдеров
// и восстанавливает его из вебхуков.
//
// Stripe получает плоскую map metadata. PayPal получает компактный JSON в custom_id,
// длина которого ограничена 127 символами. Для старых платежей поддерживаются строковые
// ссылки вида slot_<id>_<userId>, listing_<packageId>_<userId> и purchase_<purchaseId>.
package paymentmeta

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

// MaxCustomIDLen предел длины custom_id у PayPal.
const MaxCustomIDLen = 127

// Типы продуктов в метаданных.
const (
	TypeSlot     = "slot"
	TypeListing  = "listing"
	TypePurchase = "purchase"
)

var (
	// ErrUnparseable метаданные не удалось разобрать ни одним из форматов.
	ErrUnparseable = errors.New("payment metadata is not parseable")
	// ErrTooLong метаданные не помещаются в custom_id.
	ErrTooLong = errors.New("payment metadata exceeds custom_id limit")
)

// Metadata контекст покупки, переданный провайдеру при создании сессии.
type Metadata struct {
	UserID       string
	SlotID       int
	DraftID      string
	DraftType    models.Kind
	DurationDays int
	Type         string
	PackageID    string
	PurchaseID   string
}

// ProductType тип продукта для журнала аудита.
func (m Metadata) ProductType() string {
	if m.Type == "" {
		return models.ProductTypeUnknown
	}
	return m.Type
}

// Resolvable сообщает, что по метаданным можно найти покупку.
func (m Metadata) Resolvable() bool {
	switch m.Type {
	case TypePurchase:
		return m.PurchaseID != ""
	case TypeListing:
		return m.PackageID != "" && m.UserID != ""
	default:
		return m.UserID != "" && m.SlotID > 0
	}
}

// LegacyRef строка старого формата, которую Stripe хранит в client_reference_id.
func (m Metadata) LegacyRef() string {
	return fmt.Sprintf("slot_%d_%s", m.SlotID, m.UserID)
}

// Ключи metadata у Stripe.
const (
	keyUserID       = "user_id"
	keySlotID       = "slot_id"
	keyDraftID      = "draft_id"
	keyDraftType    = "draft_type"
	keyDurationDays = "duration_days"
	keyType         = "type"
	keyPackageID    = "package_id"
)

// ToStripe возвращает metadata для Checkout Session. Пустые поля не передаются.
func ToStripe(m Metadata) map[string]string {
	res := map[string]string{
		keyUserID: m.UserID,
		keySlotID: strconv.Itoa(m.SlotID),
		keyType:   m.ProductType(),
	}
	if m.DraftID != "" {
		res[keyDraftID] = m.DraftID
		res[keyDraftType] = string(m.DraftType)
	}
	if m.DurationDays > 0 {
		res[keyDurationDays] = strconv.Itoa(m.DurationDays)
	}
	if m.PackageID != "" {
		res[keyPackageID] = m.PackageID
	}
	return res
}

// FromStripe разбирает metadata сессии. Без user_id и slot_id используется
// client_reference_id в старом формате.
func FromStripe(md map[string]string, clientReferenceID string) (Metadata, error) {
	if md[keyUserID] != "" && md[keySlotID] != "" {
		slotID, err := strconv.Atoi(md[keySlotID])
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: slot_id %q", ErrUnparseable, md[keySlotID])
		}
		m := Metadata{
			UserID:    md[keyUserID],
			SlotID:    slotID,
			DraftID:   md[keyDraftID],
			Type:      md[keyType],
			PackageID: md[keyPackageID],
		}
		if m.Type == "" {
			m.Type = TypeSlot
		}
		if md[keyDraftType] != "" {
			kind, err := models.ParseKind(md[keyDraftType])
			if err != nil {
				return Metadata{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
			}
			m.DraftType = kind
		}
		if v := md[keyDurationDays]; v != "" {
			if m.DurationDays, err = strconv.Atoi(v); err != nil {
				return Metadata{}, fmt.Errorf("%w: duration_days %q", ErrUnparseable, v)
			}
		}
		return m, nil
	}
	return ParseLegacy(clientReferenceID)
}

// compact JSON для custom_id: короткие ключи экономят место.
type compact struct {
	U string `json:"u"`
	S int    `json:"s"`
	D string `json:"d,omitempty"`
	T string `json:"t,omitempty"`
	N int    `json:"n,omitempty"`
	P string `json:"p,omitempty"`
}

// EncodeCustomID кодирует метаданные для PayPal. Если JSON не помещается,
// используется старый формат slot_<id>_<userId> без черновика.
func EncodeCustomID(m Metadata) (string, error) {
	c := compact{U: m.UserID, S: m.SlotID, D: m.DraftID, T: string(m.DraftType), N: m.DurationDays}
	if m.Type != "" && m.Type != TypeSlot {
		c.P = m.Type
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("paymentmeta.EncodeCustomID: %w", err)
	}
	if len(b) <= MaxCustomIDLen {
		return string(b), nil
	}
	if legacy := m.LegacyRef(); len(legacy) <= MaxCustomIDLen {
		return legacy, nil
	}
	return "", ErrTooLong
}

// DecodeCustomID разбирает custom_id: сначала компактный JSON, затем старый формат.
func DecodeCustomID(s string) (Metadata, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		var c compact
		if err := json.Unmarshal([]byte(s), &c); err == nil && c.U != "" && c.S > 0 {
			m := Metadata{UserID: c.U, SlotID: c.S, DraftID: c.D, DurationDays: c.N, Type: c.P}
			if m.Type == "" {
				m.Type = TypeSlot
			}
			if c.T != "" {
				kind, err := models.ParseKind(c.T)
				if err != nil {
					return Metadata{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
				}
				m.DraftType = kind
			}
			return m, nil
		}
	}
	return ParseLegacy(s)
}

// ParseLegacy разбирает строковые ссылки старого формата.
func ParseLegacy(ref string) (Metadata, error) {
	parts := strings.SplitN(ref, "_", 3)
	switch {
	case len(parts) == 3 && parts[0] == TypeSlot:
		slotID, err := strconv.Atoi(parts[1])
		if err != nil || slotID <= 0 || parts[2] == "" {
			break
		}
		return Metadata{Type: TypeSlot, SlotID: slotID, UserID: parts[2]}, nil
	case len(parts) == 3 && parts[0] == TypeListing:
		if parts[1] == "" || parts[2] == "" {
			break
		}
		return Metadata{Type: TypeListing, PackageID: parts[1], UserID: parts[2]}, nil
	case len(parts) >= 2 && parts[0] == TypePurchase:
		id := strings.TrimPrefix(ref, TypePurchase+"_")
		if id == "" {
			break
		}
		return Metadata{Type: TypePurchase, PurchaseID: id}, nil
	}
	return Metadata{}, fmt.Errorf("%w: %q", ErrUnparseable, ref)
}
