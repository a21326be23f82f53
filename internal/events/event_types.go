package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventNotificationCreated EventType = "notification_created"
	EventRuleBatchCompleted  EventType = "rule_batch_completed"
)

// Event represents an engine event emitted toward the notification
// publisher.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NotificationCreatedPayload payload.
type NotificationCreatedPayload struct {
	Notification domain.Notification `json:"notification"`
}

// RuleBatchCompletedPayload payload.
type RuleBatchCompletedPayload struct {
	RuleID    int64         `json:"rule_id"`
	RuleName  string        `json:"rule_name"`
	Matched   int           `json:"matched"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Aborted   bool          `json:"aborted"`
	Duration  time.Duration `json:"duration"`
}
