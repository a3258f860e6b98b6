// Package cancel реализует HTTP-обработчик отмены подписки пользователя.
//
// По умолчанию подписка отменяется в конце оплаченного периода, кредиты
// при этом сохраняются до конца периода. Немедленная отмена доступна
// через поле at_period_end=false.
package cancel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/vibeboost/backend/internal/http/middlewarectx"
	"github.com/vibeboost/backend/internal/http/response"
	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/services/subscription"
)

// Handler управляет HTTP-запросами на отмену подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики отмены подписки.
type Service interface {
	Cancel(ctx context.Context, userUID string, atPeriodEnd bool) error
}

// New создаёт новый Handler с переданным логгером и сервисом подписок.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отмена подписки
// @Description Отменяет активную подписку пользователя. По умолчанию в конце оплаченного периода.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body models.DummyCancelRequest false "Параметры отмены"
// @Success 200 {object} response.Response "Подписка отменена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Нет активной подписки"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /subscription/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	atPeriodEnd := true
	if req.AtPeriodEnd != nil {
		atPeriodEnd = *req.AtPeriodEnd
	}

	userUID, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	if err := h.service.Cancel(r.Context(), userUID, atPeriodEnd); err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			log.Warn("no active subscription to cancel")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no active subscription"))
			return
		}
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not cancel subscription"))
		return
	}

	log.Info("subscription canceled", slog.Bool("at_period_end", atPeriodEnd))
	render.JSON(w, r, response.StatusOKWithData(map[string]bool{
		"at_period_end": atPeriodEnd,
	}))
}
