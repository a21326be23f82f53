package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// NotificationWriter inserts notification rows and announces them on the
// event dispatcher so the publisher can fan them out to the channel
// connectors. Rows are write-once; idempotency lives with the callers'
// notified_*_at markers, not here.
type NotificationWriter struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationWriter constructs the writer.
func NewNotificationWriter(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *NotificationWriter {
	return &NotificationWriter{dispatcher: dispatcher, metrics: metrics, logger: logger}
}

// Write persists the notification on the tenant store and publishes a
// notification_created event.
func (w *NotificationWriter) Write(ctx context.Context, repo repository.NotificationRepository, notification *domain.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if err := repo.Create(ctx, notification); err != nil {
		return err
	}
	w.metrics.RecordNotification(string(notification.Type))

	if w.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventNotificationCreated,
			TenantID:  notification.TenantID,
			Timestamp: time.Now(),
			Payload:   events.NotificationCreatedPayload{Notification: *notification},
		}
		if err := w.dispatcher.Publish(ctx, event); err != nil {
			w.logger.Warn("publish notification event", zap.Error(err))
		}
	}
	return nil
}
