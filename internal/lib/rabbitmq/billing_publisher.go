package rabbitmq

import (
	"github.com/streadway/amqp"

	"github.com/vibeboost/backend/internal/models"
)

// BillingPublisher публикует billing-уведомления в exchange billing.
type BillingPublisher struct {
	ch *amqp.Channel
}

// NewBillingPublisher создает новый экземпляр BillingPublisher.
func NewBillingPublisher(ch *amqp.Channel) *BillingPublisher {
	return &BillingPublisher{ch: ch}
}

// PublishBillingEvent публикует уведомление с ключом notifications.
func (p *BillingPublisher) PublishBillingEvent(notification models.BillingNotification) error {
	return PublishMessage(p.ch, "billing", BillingNotificationsRoutingKey, notification)
}
