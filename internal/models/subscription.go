package models

import "time"

// Статусы подписки, отражающие состояние в платёжном провайдере.
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
)

// Subscription представляет подписку пользователя на платный тариф.
// Запись связывает внешний идентификатор подписки платёжного провайдера
// с пользователем и планом — события провайдера приходят только
// с внешним идентификатором.
type Subscription struct {
	UserUID              string    `json:"-"`                    // Владелец подписки
	Email                string    `json:"-"`                    // Почта плательщика, известная из checkout-сессии
	StripeCustomerID     string    `json:"-"`                    // Идентификатор покупателя в Stripe
	StripeSubscriptionID string    `json:"-"`                    // Внешний идентификатор подписки
	PlanID               string    `json:"plan_id"`              // Оплаченный план
	Status               string    `json:"status"`               // Статус подписки (active, past_due, canceled...)
	CurrentPeriodStart   time.Time `json:"current_period_start"` // Начало оплаченного периода
	CurrentPeriodEnd     time.Time `json:"current_period_end"`   // Конец оплаченного периода
	CancelAtPeriodEnd    bool      `json:"cancel_at_period_end"` // Отмена запланирована на конец периода
	LastAppliedInvoiceID string    `json:"-"`                    // Последний начисленный инвойс, защита от повторной доставки
}
