// Package webhook реализует HTTP-обработчик входящих событий Stripe.
//
// Обработчик проверяет подпись события, разбирает полезную нагрузку
// и передаёт её в сервис биллинга. События доставляются минимум один раз,
// поэтому вся обработка ниже по стеку идемпотентна. Неизвестные типы
// событий логируются и подтверждаются ответом 200, чтобы Stripe
// не копил очередь повторных доставок.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/vibeboost/backend/internal/http/response"
	"github.com/vibeboost/backend/internal/lib/sl"
)

// maxBodyBytes ограничивает размер тела запроса, рекомендация Stripe.
const maxBodyBytes = 65536

// Handler управляет HTTP-запросами с событиями биллинга от Stripe.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string
}

// Service описывает интерфейс сервиса биллинга, применяющего события
// платёжного провайдера к подпискам и кредитным счетам.
type Service interface {
	HandleCheckoutCompleted(ctx context.Context, userUID, planID, email,
		customerID, subscriptionID string, periodStart, periodEnd time.Time) error
	HandleSubscriptionCreated(ctx context.Context, userUID, planID,
		customerID, subscriptionID string, periodStart, periodEnd time.Time) error
	HandleSubscriptionUpdated(ctx context.Context, subscriptionID, status string,
		periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error
	HandleSubscriptionCanceled(ctx context.Context, subscriptionID string, immediate bool) error
	HandlePaymentSucceeded(ctx context.Context, subscriptionID, invoiceID string) error
	HandlePaymentFailed(ctx context.Context, subscriptionID string) error
}

// New создаёт новый Handler. Пустой webhookSecret отключает проверку
// подписи, такой режим допустим только в локальной разработке.
func New(log *slog.Logger, service Service, webhookSecret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// checkoutSessionPayload содержит нужные обработчику поля события
// checkout.session.completed. Сессия ссылается на подписку и покупателя
// строковыми идентификаторами.
type checkoutSessionPayload struct {
	ID              string `json:"id"`
	Customer        string `json:"customer"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

func (p *checkoutSessionPayload) email() string {
	if p.CustomerDetails.Email != "" {
		return p.CustomerDetails.Email
	}
	return p.CustomerEmail
}

// subscriptionPayload содержит нужные обработчику поля событий
// customer.subscription.*. Начало и конец периода в новых версиях API
// переехали на позиции подписки, поэтому читаем оба места.
type subscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (p *subscriptionPayload) periodStart() time.Time {
	if p.CurrentPeriodStart != 0 {
		return time.Unix(p.CurrentPeriodStart, 0).UTC()
	}
	if len(p.Items.Data) > 0 && p.Items.Data[0].CurrentPeriodStart != 0 {
		return time.Unix(p.Items.Data[0].CurrentPeriodStart, 0).UTC()
	}
	return time.Time{}
}

func (p *subscriptionPayload) periodEnd() time.Time {
	if p.CurrentPeriodEnd != 0 {
		return time.Unix(p.CurrentPeriodEnd, 0).UTC()
	}
	if len(p.Items.Data) > 0 && p.Items.Data[0].CurrentPeriodEnd != 0 {
		return time.Unix(p.Items.Data[0].CurrentPeriodEnd, 0).UTC()
	}
	return time.Time{}
}

// invoicePayload содержит нужные обработчику поля событий invoice.*.
// Ссылка на подписку в новых версиях API переехала в parent.
type invoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}

// ServeHTTP godoc
// @Summary Вебхук событий Stripe
// @Description Принимает события биллинга от Stripe, проверяет подпись и применяет их к подпискам и кредитам.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} response.Response "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Некорректная подпись или тело события"
// @Failure 500 {object} response.ErrorResponse "Ошибка применения события"
// @Router /webhook/stripe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	event, err := h.constructEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Error("failed to verify event signature", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid event signature"))
		return
	}

	log = log.With(slog.String("event_type", string(event.Type)), slog.String("event_id", event.ID))

	if err := h.dispatch(r.Context(), log, &event); err != nil {
		log.Error("failed to apply billing event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not apply event"))
		return
	}

	log.Info("billing event applied")
	render.JSON(w, r, response.StatusOKWithData(map[string]bool{"received": true}))
}

func (h *Handler) constructEvent(body []byte, signature string) (stripe.Event, error) {
	if h.webhookSecret != "" {
		return webhook.ConstructEvent(body, signature, h.webhookSecret)
	}
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

func (h *Handler) dispatch(ctx context.Context, log *slog.Logger, event *stripe.Event) error {
	switch string(event.Type) {
	case "checkout.session.completed":
		var payload checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return err
		}
		// Период оплаты придёт вместе с событием customer.subscription.created.
		return h.service.HandleCheckoutCompleted(ctx,
			payload.Metadata["user_uid"], payload.Metadata["plan_id"], payload.email(),
			payload.Customer, payload.Subscription, time.Time{}, time.Time{})

	case "customer.subscription.created":
		var payload subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return err
		}
		return h.service.HandleSubscriptionCreated(ctx,
			payload.Metadata["user_uid"], payload.Metadata["plan_id"],
			payload.Customer, payload.ID, payload.periodStart(), payload.periodEnd())

	case "customer.subscription.updated":
		var payload subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return err
		}
		return h.service.HandleSubscriptionUpdated(ctx,
			payload.ID, payload.Status,
			payload.periodStart(), payload.periodEnd(), payload.CancelAtPeriodEnd)

	case "customer.subscription.deleted":
		var payload subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return err
		}
		return h.service.HandleSubscriptionCanceled(ctx, payload.ID, true)

	case "invoice.payment_succeeded":
		var payload invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return err
		}
		if payload.subscriptionID() == "" {
			log.Warn("invoice without subscription, skipping", slog.String("invoice_id", payload.ID))
			return nil
		}
		return h.service.HandlePaymentSucceeded(ctx, payload.subscriptionID(), payload.ID)

	case "invoice.payment_failed":
		var payload invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return err
		}
		if payload.subscriptionID() == "" {
			log.Warn("invoice without subscription, skipping", slog.String("invoice_id", payload.ID))
			return nil
		}
		return h.service.HandlePaymentFailed(ctx, payload.subscriptionID())

	default:
		log.Info("unhandled event type, skipping")
		return nil
	}
}
