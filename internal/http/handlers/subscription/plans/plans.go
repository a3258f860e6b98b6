// Package plans реализует HTTP-обработчик для получения каталога тарифов.
package plans

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/vibeboost/backend/internal/http/response"
	"github.com/vibeboost/backend/internal/models"
)

// Handler управляет HTTP-запросами на получение списка тарифных планов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс каталога тарифов.
type Service interface {
	Plans() []models.PlanInfo
}

// New создаёт новый Handler с переданным логгером и сервисом подписок.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Каталог тарифов
// @Description Возвращает список доступных тарифных планов с ценами и месячными лимитами кредитов.
// @Tags Subscriptions
// @Produce  json
// @Success 200 {object} response.Response{data=[]models.PlanInfo} "Список тарифов"
// @Router /plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.plans"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	plans := h.service.Plans()

	log.Info("plans listed", slog.Int("count", len(plans)))
	render.JSON(w, r, response.StatusOKWithData(plans))
}
