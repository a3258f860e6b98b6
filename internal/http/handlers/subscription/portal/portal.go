// Package portal реализует HTTP-обработчик выдачи ссылки на биллинг-портал
// платёжного провайдера, где пользователь управляет способами оплаты.
package portal

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

// Handler управляет HTTP-запросами на получение ссылки биллинг-портала.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики биллинг-портала.
type Service interface {
	BillingPortalURL(ctx context.Context, userUID string) (string, error)
}

// New создаёт новый Handler с переданным логгером и сервисом подписок.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Ссылка на биллинг-портал
// @Description Возвращает URL биллинг-портала провайдера для управления оплатой.
// @Tags Subscriptions
// @Produce  json
// @Success 200 {object} response.Response{data=map[string]string} "URL портала"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Нет подписки"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /subscription/portal [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.portal"

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

	url, err := h.service.BillingPortalURL(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			log.Warn("no subscription for billing portal")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no active subscription"))
			return
		}
		log.Error("failed to create billing portal session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create billing portal session"))
		return
	}

	log.Info("billing portal session created")
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"url": url,
	}))
}
