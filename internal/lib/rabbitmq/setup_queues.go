package rabbitmq

// QueueConfig очередь и ключ маршрутизации, с которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

const (
	// RoutingSlotActivated событие успешной активации черновика.
	RoutingSlotActivated = "slot.activated"
	// RoutingSlotExpired событие истечения срока размещения.
	RoutingSlotExpired = "slot.expired"
)

// GetNotificationQueues очереди, которые читает notification-worker.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notifications.slot_activated", RoutingKey: RoutingSlotActivated},
		{QueueName: "notifications.slot_expired", RoutingKey: RoutingSlotExpired},
	}
}
