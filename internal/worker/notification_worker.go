package worker

import (
	"github.com/spec-kit/sla-engine/internal/service"
)

// StartNotificationPublisher registers the notification fan-out handlers.
func StartNotificationPublisher(publisher *service.NotificationPublisher) {
	if publisher == nil {
		return
	}
	publisher.RegisterHandlers()
}
