package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/persistence"
)

// NotificationPublisher fans engine notifications out to the downstream
// channel connectors over Redis pub/sub. Connectors remain pure readers
// of the notification table; the Redis channel just spares them polling.
type NotificationPublisher struct {
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	channel    string
	logger     *zap.Logger
}

// NewNotificationPublisher creates the publisher.
func NewNotificationPublisher(dispatcher events.Dispatcher, redis *persistence.Redis, channel string, logger *zap.Logger) *NotificationPublisher {
	return &NotificationPublisher{
		dispatcher: dispatcher,
		redis:      redis,
		channel:    channel,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to engine events.
func (p *NotificationPublisher) RegisterHandlers() {
	if p.dispatcher == nil {
		return
	}
	p.dispatcher.Subscribe(events.EventNotificationCreated, p.handleNotificationCreated)
	p.dispatcher.Subscribe(events.EventRuleBatchCompleted, p.handleRuleBatchCompleted)
}

func (p *NotificationPublisher) handleNotificationCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.NotificationCreatedPayload)
	if !ok {
		return nil
	}
	data, err := json.Marshal(payload.Notification)
	if err != nil {
		return err
	}
	if err := p.redis.Publish(ctx, p.channel, data); err != nil {
		// Connectors still see the row in the notification table; losing
		// the pub/sub nudge is not fatal.
		p.logger.Warn("publish notification to redis", zap.Error(err))
	}
	return nil
}

func (p *NotificationPublisher) handleRuleBatchCompleted(ctx context.Context, event events.Event) error {
	p.logger.Info("rule batch completed",
		zap.String("tenant_id", event.TenantID),
		zap.Any("payload", event.Payload))
	return nil
}
