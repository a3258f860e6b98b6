package models

import "time"

// Виды billing-уведомлений, публикуемых в очередь.
const (
	BillingNotificationPaymentFailed = "payment_failed"
	BillingNotificationRenewed       = "renewed"
)

// BillingNotification сообщение для очереди уведомлений о событиях биллинга.
type BillingNotification struct {
	Kind       string    `json:"kind"`
	UserUID    string    `json:"user_uid"`
	Email      string    `json:"email"`
	PlanID     string    `json:"plan_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
