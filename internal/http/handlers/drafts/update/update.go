// Package update реализует HTTP-обработчик изменения черновика.
package update

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/http/response"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

// Service изменение черновика.
type Service interface {
	Update(ctx context.Context, kind models.Kind, id, userID string, fields models.ListingFields) error
}

// Handler обработчик PUT /drafts/{kind}/{id}.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Изменить черновик
// @Description Меняет поля черновика владельца. Статус и срок размещения через этот метод не меняются.
// @Tags Drafts
// @Accept  json
// @Produce  json
// @Param kind path string true "Тип объявления"
// @Param id path string true "ID черновика"
// @Param request body models.ListingFields true "Новые поля"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 403 {object} response.ErrorResponse "Черновик не принадлежит пользователю"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Security BearerAuth
// @Router /drafts/{kind}/{id} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.drafts.update"
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

	var fields models.ListingFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(fields); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	kind, id := models.Kind(chi.URLParam(r, "kind")), chi.URLParam(r, "id")
	if err := h.service.Update(r.Context(), kind, id, userID, fields); err != nil {
		log.Warn("failed to update draft", slog.String("id", id), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	log.Info("draft updated", slog.String("id", id))
	render.JSON(w, r, response.OKWithData(map[string]string{"id": id}))
}
