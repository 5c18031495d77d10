package realtime

// Event names pushed to clients.
const (
	EventConnected                    = "connected"
	EventHeartbeat                    = "heartbeat"
	EventReceiveNotification          = "ReceiveNotification"
	EventUnreadNotificationCount      = "UnreadNotificationCount"
	EventNotificationMarkedAsRead     = "NotificationMarkedAsRead"
	EventAllNotificationsMarkedAsRead = "AllNotificationsMarkedAsRead"
)

// Event is a named payload delivered to a connection.
type Event struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}
