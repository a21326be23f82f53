package domain

import "time"

// NotificationType enumerates the stable output contract consumed by the
// downstream channel connectors. Values must not change without a
// migration plan.
type NotificationType string

const (
	NotificationResponseNear    NotificationType = "SLA_RESPONSE_NEAR"
	NotificationResponseBreach  NotificationType = "SLA_RESPONSE_BREACHED"
	NotificationResponsePast    NotificationType = "SLA_RESPONSE_PAST_BREACH"
	NotificationResolveNear     NotificationType = "SLA_RESOLVE_NEAR"
	NotificationResolveBreach   NotificationType = "SLA_RESOLVE_BREACHED"
	NotificationResolvePast     NotificationType = "SLA_RESOLVE_PAST_BREACH"
	NotificationRuleRunComplete NotificationType = "RULE_EXECUTION_COMPLETE"
)

// NotificationSeverity grades notification urgency.
type NotificationSeverity string

const (
	SeverityInfo     NotificationSeverity = "INFO"
	SeverityWarning  NotificationSeverity = "WARNING"
	SeverityCritical NotificationSeverity = "CRITICAL"
)

// Notification is a write-once row consumed by channel connectors.
// TicketID is nil for batch-completion notices.
type Notification struct {
	ID        string
	TenantID  string
	TicketID  *int64
	Type      NotificationType
	Severity  NotificationSeverity
	Message   string
	Payload   map[string]any
	CreatedAt time.Time
}
