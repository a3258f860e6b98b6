// Package generate реализует HTTP-обработчик платной генерации
// маркетинговых вариантов изображения.
//
// Кредиты списываются до обращения к генератору, при сбое генерации
// списание компенсируется возвратом. Недостаток кредитов отражается
// статусом 402 Payment Required.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/vibeboost/backend/internal/http/middlewarectx"
	"github.com/vibeboost/backend/internal/http/response"
	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/services/credits"
	"github.com/vibeboost/backend/internal/services/generation"
)

// Handler управляет HTTP-запросами на генерацию изображений.
type Handler struct {
	log           *slog.Logger
	service       Service
	defaultImages int
	validate      *validator.Validate
}

// Service описывает интерфейс бизнес-логики платной генерации.
type Service interface {
	Generate(ctx context.Context, userUID string, req models.DummyGenerateRequest) (*models.GenerationResult, error)
}

// New создаёт новый Handler. defaultImages задаёт количество изображений,
// когда клиент не указал его явно.
func New(log *slog.Logger, service Service, defaultImages int) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		defaultImages: defaultImages,
		validate:      validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Генерация изображений
// @Description Генерирует маркетинговые варианты загруженного изображения, списывая кредиты за каждое изображение.
// @Tags Generation
// @Accept  json
// @Produce  json
// @Param request body models.DummyGenerateRequest true "Параметры генерации"
// @Success 200 {object} response.Response{data=models.GenerationResult} "Результат генерации"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Недостаточно кредитов"
// @Failure 404 {object} response.ErrorResponse "Исходный файл не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации запроса"
// @Failure 500 {object} response.ErrorResponse "Ошибка генерации"
// @Security BearerAuth
// @Router /generate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.generation.generate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = h.defaultImages
	}

	userUID, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.Generate(r.Context(), userUID, req)
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInsufficientCredits):
			log.Warn("insufficient credits", slog.Int("quantity", req.Quantity))
			w.WriteHeader(http.StatusPaymentRequired)
			render.JSON(w, r, response.Error("insufficient credits"))
		case errors.Is(err, generation.ErrSourceNotFound):
			log.Warn("source file not found", slog.String("file_id", req.FileID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("source file not found"))
		default:
			log.Error("failed to generate images", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not generate images"))
		}
		return
	}

	log.Info("images generated",
		slog.Int("count", len(result.Images)),
		slog.Int("credits_remaining", result.CreditsRemaining))
	render.JSON(w, r, response.StatusOKWithData(result))
}
