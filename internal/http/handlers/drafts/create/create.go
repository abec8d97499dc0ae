// Package create реализует HTTP-обработчик создания черновика объявления.
//
// Черновик создаётся неактивным. Объявление в бесплатном слоте публикуется сразу
// после создания, без оформления покупки.
package create

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

// Request тело запроса на создание черновика.
type Request struct {
	Type string `json:"type" validate:"required" example:"banner"`
	models.ListingFields
}

// Result ответ: id черновика и признак немедленной публикации.
type Result struct {
	ID        string        `json:"id"`
	Kind      models.Kind   `json:"kind"`
	Status    models.Status `json:"status"`
	Published bool          `json:"published"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// Service создание черновика.
type Service interface {
	Create(ctx context.Context, kind models.Kind, userID string, fields models.ListingFields) (string, error)
}

// Publisher публикация черновика бесплатного слота.
type Publisher interface {
	Publish(ctx context.Context, kind models.Kind, draftID, userID string) (models.ActivationResult, error)
}

// Handler обработчик POST /drafts.
type Handler struct {
	log       *slog.Logger
	service   Service
	publisher Publisher
	validate  *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, publisher Publisher) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать черновик
// @Description Создает неактивный черновик. В бесплатном слоте объявление публикуется сразу.
// @Tags Drafts
// @Accept  json
// @Produce  json
// @Param request body Request true "Тип и поля черновика"
// @Success 200 {object} response.Response{data=Result}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /drafts [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.drafts.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	kind, err := models.ParseKind(req.Type)
	if err != nil {
		response.RenderError(w, r, err)
		return
	}

	id, err := h.service.Create(r.Context(), kind, userID, req.ListingFields)
	if err != nil {
		log.Error("failed to create draft", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	res := Result{ID: id, Kind: kind, Status: models.StatusDraft}

	if req.SlotID != nil && slots.IsFree(*req.SlotID) {
		published, err := h.publisher.Publish(r.Context(), kind, id, userID)
		if err != nil {
			log.Error("failed to publish free listing", slog.String("id", id), sl.Err(err))
			response.RenderError(w, r, err)
			return
		}
		res.Status, res.Published, res.ExpiresAt = models.StatusActive, true, published.ExpiresAt
	}

	log.Info("draft created", slog.String("id", id), slog.Bool("published", res.Published))
	render.JSON(w, r, response.OKWithData(res))
}
