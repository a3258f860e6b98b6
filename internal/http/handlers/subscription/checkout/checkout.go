// Package checkout реализует HTTP-обработчик для создания checkout-сессии
// платёжного провайдера при покупке тарифного плана.
package checkout

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
	"github.com/vibeboost/backend/internal/plan"
	"github.com/vibeboost/backend/internal/services/subscription"
)

// Handler управляет HTTP-запросами на создание checkout-сессии.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики оформления подписки.
type Service interface {
	CreateCheckout(ctx context.Context, userUID, email, planID string) (string, error)
}

// New создаёт новый Handler с переданным логгером и сервисом подписок.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создание checkout-сессии
// @Description Создаёт сессию оплаты выбранного тарифного плана и возвращает URL для перехода к оплате.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body models.DummyCheckoutRequest true "Идентификатор плана"
// @Success 200 {object} response.Response{data=map[string]string} "URL checkout-сессии"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или план недоступен для покупки"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации запроса"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /subscription/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.checkout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyCheckoutRequest
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

	userUID, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	email, _ := r.Context().Value(middlewarectx.Email).(string)

	checkoutURL, err := h.service.CreateCheckout(r.Context(), userUID, email, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, plan.ErrUnknownPlan):
			log.Warn("unknown plan requested", slog.String("plan_id", req.PlanID))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown plan"))
		case errors.Is(err, subscription.ErrPlanNotSelfService):
			log.Warn("plan is not self-service", slog.String("plan_id", req.PlanID))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("plan is not available for checkout"))
		default:
			log.Error("failed to create checkout session", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not create checkout session"))
		}
		return
	}

	log.Info("checkout session created", slog.String("plan_id", req.PlanID))
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"checkout_url": checkoutURL,
	}))
}
