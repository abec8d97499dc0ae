package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation базовая ошибка валидации: запрос отклоняется до любых внешних вызовов.
var ErrValidation = errors.New("validation failed")

var (
	ErrUnknownSlot     = fmt.Errorf("%w: unknown slot", ErrValidation)
	ErrUnknownKind     = fmt.Errorf("%w: unknown draft type", ErrValidation)
	ErrPackageNotFound = fmt.Errorf("%w: package not found", ErrValidation)
	ErrSlotMismatch    = fmt.Errorf("%w: draft type does not match slot", ErrValidation)
	ErrUnknownProvider = fmt.Errorf("%w: unknown payment provider", ErrValidation)
)

var (
	// ErrNotOwner черновик не найден среди объектов вызывающего пользователя.
	ErrNotOwner = errors.New("draft not found or not owned by caller")
	// ErrProviderNotConfigured у провайдера нет учётных данных.
	ErrProviderNotConfigured = errors.New("payment provider is not configured")
	// ErrProviderUnavailable API провайдера недоступно, запрос можно повторить.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrSignatureInvalid подпись вебхука не прошла проверку.
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	// ErrAlreadyActive покупка уже активирована этой же транзакцией; для вызывающего это успех.
	ErrAlreadyActive = errors.New("purchase already activated")
	// ErrNoPendingPurchase вебхук не удалось сопоставить с ожидающей покупкой.
	ErrNoPendingPurchase = errors.New("no pending purchase matches payment")
	// ErrPaymentNotConfirmed провайдер не подтвердил оплату: отказ, отсутствие сессии или неизвестная ссылка.
	ErrPaymentNotConfirmed = errors.New("payment is not confirmed by provider")
	// ErrDraftActive черновик уже опубликован, повторная оплата не нужна.
	ErrDraftActive = errors.New("draft is already active")
	// ErrNoActivePurchase у пользователя нет оплаченной покупки слота, к которой можно привязать черновик.
	ErrNoActivePurchase = errors.New("no active purchase for slot")
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("not found")
)

// CapacityExceededError слот заполнен. NextAvailableAt заполняется только если
// у слота есть активная покупка с известной датой окончания.
type CapacityExceededError struct {
	SlotID          int
	MaxConcurrent   int
	NextAvailableAt *time.Time
}

func (e *CapacityExceededError) Error() string {
	if e.NextAvailableAt != nil {
		return fmt.Sprintf("slot %d is full (%d listings), next available at %s",
			e.SlotID, e.MaxConcurrent, e.NextAvailableAt.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("slot %d is full (%d listings)", e.SlotID, e.MaxConcurrent)
}
