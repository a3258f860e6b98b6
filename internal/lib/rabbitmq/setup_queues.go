package rabbitmq

// Имена очереди и ключа маршрутизации billing-уведомлений.
const (
	BillingNotificationsQueue      = "billing.notifications"
	BillingNotificationsRoutingKey = "notifications"
)

// QueueConfig описывает очередь и ключ маршрутизации в exchange billing.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetBillingQueues возвращает очереди billing-уведомлений.
func GetBillingQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: BillingNotificationsQueue, RoutingKey: BillingNotificationsRoutingKey},
	}
}
