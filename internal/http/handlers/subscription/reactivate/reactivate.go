// Package reactivate реализует HTTP-обработчик снятия отложенной отмены
// подписки: подписка с флагом cancel_at_period_end продолжит продлеваться.
package reactivate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/vibeboost/backend/internal/http/middlewarectx"
	"github.com/vibeboost/backend/internal/http/response"
	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/services/subscription"
)

// Handler управляет HTTP-запросами на реактивацию подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики реактивации подписки.
type Service interface {
	Reactivate(ctx context.Context, userUID string) error
}

// New создаёт новый Handler с переданным логгером и сервисом подписок.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Реактивация подписки
// @Description Снимает отложенную отмену: подписка продолжит продлеваться.
// @Tags Subscriptions
// @Produce  json
// @Success 200 {object} response.Response "Отмена снята"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Нет подписки, ожидающей отмены"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /subscription/reactivate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.reactivate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	if err := h.service.Reactivate(r.Context(), userUID); err != nil {
		switch {
		case errors.Is(err, subscription.ErrNoActiveSubscription):
			log.Warn("no active subscription to reactivate")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no active subscription"))
		case errors.Is(err, subscription.ErrNotPendingCancel):
			log.Warn("subscription is not scheduled for cancellation")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("subscription is not scheduled for cancellation"))
		default:
			log.Error("failed to reactivate subscription", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not reactivate subscription"))
		}
		return
	}

	log.Info("subscription reactivated")
	render.JSON(w, r, response.StatusOKWithData(map[string]bool{
		"cancel_at_period_end": false,
	}))
}
