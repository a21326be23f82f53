package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// RunRuleResponse reports the synchronous half of a background rule run.
type RunRuleResponse struct {
	RuleID  int64 `json:"rule_id"`
	Matched int   `json:"matched"`
	Started bool  `json:"started"`
}

// RuleExecutionResponse is one execution audit record.
type RuleExecutionResponse struct {
	ID           string                     `json:"id"`
	RuleID       int64                      `json:"rule_id"`
	TicketID     int64                      `json:"ticket_id"`
	Action       domain.ActionKind          `json:"action"`
	Result       domain.RuleExecutionResult `json:"result"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// ResolutionResponse is the outcome of an SLA resolution.
type ResolutionResponse struct {
	TicketID        int64            `json:"ticket_id"`
	SLADefinitionID *int64           `json:"sla_definition_id,omitempty"`
	Source          domain.SLASource `json:"source"`
}

// TicketSLAStatusResponse reports a ticket's SLA clocks. Percent fields
// are omitted for phases that are complete or paused.
type TicketSLAStatusResponse struct {
	TicketID        int64            `json:"ticket_id"`
	SLADefinitionID *int64           `json:"sla_definition_id,omitempty"`
	SLAName         string           `json:"sla_name,omitempty"`
	Source          domain.SLASource `json:"source,omitempty"`
	Paused          bool             `json:"paused"`
	ResponsePercent *float64         `json:"response_percent,omitempty"`
	ResolvePercent  *float64         `json:"resolve_percent,omitempty"`
	ResponseDueAt   *time.Time       `json:"response_due_at,omitempty"`
	ResolveDueAt    *time.Time       `json:"resolve_due_at,omitempty"`
}

// NotificationResponse is one emitted notification row.
type NotificationResponse struct {
	ID        string                      `json:"id"`
	TicketID  *int64                      `json:"ticket_id,omitempty"`
	Type      domain.NotificationType     `json:"type"`
	Severity  domain.NotificationSeverity `json:"severity"`
	Message   string                      `json:"message"`
	Payload   map[string]any              `json:"payload,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}
