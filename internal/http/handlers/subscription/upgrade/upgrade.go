// Package upgrade реализует HTTP-обработчик повышения тарифного плана
// действующей подписки.
package upgrade

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

// Handler управляет HTTP-запросами на смену тарифного плана.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики апгрейда подписки.
type Service interface {
	Upgrade(ctx context.Context, userUID, newPlanID string) error
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
// @Summary Повышение тарифного плана
// @Description Переводит активную подписку на более высокий тариф с немедленным начислением кредитов нового плана.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body models.DummyUpgradeRequest true "Идентификатор нового плана"
// @Success 200 {object} response.Response "План обновлён"
// @Failure 400 {object} response.ErrorResponse "Недопустимый переход между планами"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Нет активной подписки"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации запроса"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /subscription/upgrade [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.upgrade"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyUpgradeRequest
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

	if err := h.service.Upgrade(r.Context(), userUID, req.PlanID); err != nil {
		switch {
		case errors.Is(err, subscription.ErrNoActiveSubscription):
			log.Warn("no active subscription to upgrade")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no active subscription"))
		case errors.Is(err, plan.ErrUnknownPlan), errors.Is(err, plan.ErrInvalidPlanTransition):
			log.Warn("invalid plan transition", slog.String("plan_id", req.PlanID), sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid plan transition"))
		default:
			log.Error("failed to upgrade subscription", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not upgrade subscription"))
		}
		return
	}

	log.Info("subscription upgraded", slog.String("plan_id", req.PlanID))
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"plan_id": req.PlanID,
	}))
}
