package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

// CapacityResponse ответ 409 для заполненного слота.
type CapacityResponse struct {
	Status          string     `json:"status" example:"Error"`
	Error           string     `json:"error"`
	SlotID          int        `json:"slotId"`
	NextAvailableAt *time.Time `json:"nextAvailableAt,omitempty"`
}

// FromError переводит доменную ошибку в HTTP-статус и тело ответа.
// Неизвестные ошибки скрываются за 500 без подробностей.
func FromError(err error) (int, any) {
	var capErr *models.CapacityExceededError
	switch {
	case errors.As(err, &capErr):
		return http.StatusConflict, CapacityResponse{
			Status:          StatusError,
			Error:           "slot is full",
			SlotID:          capErr.SlotID,
			NextAvailableAt: capErr.NextAvailableAt,
		}
	case errors.Is(err, models.ErrSignatureInvalid):
		return http.StatusBadRequest, Error("invalid webhook signature")
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity, Error(validationMessage(err))
	case errors.Is(err, models.ErrNotOwner):
		return http.StatusForbidden, Error("draft not found or not owned by caller")
	case errors.Is(err, models.ErrDraftActive):
		return http.StatusConflict, Error("draft is already active")
	case errors.Is(err, models.ErrPaymentNotConfirmed):
		return http.StatusPaymentRequired, Error("payment is not confirmed")
	case errors.Is(err, models.ErrNoActivePurchase):
		return http.StatusPaymentRequired, Error("no active purchase for slot")
	case errors.Is(err, models.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, Error("payment provider unavailable, try again later")
	case errors.Is(err, models.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, Error("payment provider is not configured")
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, Error("not found")
	default:
		return http.StatusInternalServerError, Error("internal error")
	}
}

// RenderError пишет ответ для доменной ошибки.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := FromError(err)
	render.Status(r, status)
	render.JSON(w, r, body)
}

func validationMessage(err error) string {
	for _, known := range []error{
		models.ErrUnknownSlot,
		models.ErrUnknownKind,
		models.ErrPackageNotFound,
		models.ErrSlotMismatch,
		models.ErrUnknownProvider,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return models.ErrValidation.Error()
}
