package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleTarget selects which ticket text fields a rule matches against.
type RuleTarget string

const (
	RuleTargetTitle RuleTarget = "title"
	RuleTargetBody  RuleTarget = "body"
	RuleTargetBoth  RuleTarget = "both"
)

// ActionKind enumerates the closed rule-action vocabulary.
type ActionKind string

const (
	ActionDeleteTicket     ActionKind = "delete_ticket"
	ActionReassign         ActionKind = "reassign"
	ActionForkTicket       ActionKind = "fork_ticket"
	ActionSetPriority      ActionKind = "set_priority"
	ActionSetStatus        ActionKind = "set_status"
	ActionAddTag           ActionKind = "add_tag"
	ActionMarkMonitoring   ActionKind = "mark_monitoring"
	ActionSetSLADeadlines  ActionKind = "set_sla_deadlines"
	ActionSetSLADefinition ActionKind = "set_sla_definition"
)

// RuleAction is the closed tagged variant of rule actions. Each concrete
// action carries its own typed parameter payload; executors dispatch via
// exhaustive type switch.
type RuleAction interface {
	Kind() ActionKind
}

// DeleteTicketAction removes the matched ticket.
type DeleteTicketAction struct{}

// ReassignAction sets the assignee and promotes OPEN tickets to IN_PROGRESS.
type ReassignAction struct {
	AssigneeID string `json:"assignee_id"`
}

// ForkTicketAction creates a new ticket addressed to a different customer,
// copying title and body with a forwarding prefix.
type ForkTicketAction struct {
	TargetCustomerID string `json:"target_customer_id"`
}

// SetPriorityAction overrides the ticket priority.
type SetPriorityAction struct {
	Priority TicketPriority `json:"priority"`
}

// SetStatusAction overrides the ticket status.
type SetStatusAction struct {
	Status TicketStatus `json:"status"`
}

// AddTagAction appends a tag, deduplicated against existing tags.
type AddTagAction struct {
	Tag string `json:"tag"`
}

// MarkMonitoringAction flags the ticket as a monitoring-source ticket and
// merges structured metadata, preserving previously-set fields.
type MarkMonitoringAction struct {
	Metadata map[string]any `json:"metadata"`
}

// SetSLADeadlinesAction sets SLA deadlines directly, bypassing the
// resolver. An explicit override path.
type SetSLADeadlinesAction struct {
	ResponseDueAt *time.Time `json:"response_due_at,omitempty"`
	ResolveDueAt  *time.Time `json:"resolve_due_at,omitempty"`
}

// SetSLADefinitionAction records SLA intent (definition id + provenance)
// without recomputing deadlines.
type SetSLADefinitionAction struct {
	SLADefinitionID int64     `json:"sla_definition_id"`
	Source          SLASource `json:"source"`
}

func (DeleteTicketAction) Kind() ActionKind     { return ActionDeleteTicket }
func (ReassignAction) Kind() ActionKind         { return ActionReassign }
func (ForkTicketAction) Kind() ActionKind       { return ActionForkTicket }
func (SetPriorityAction) Kind() ActionKind      { return ActionSetPriority }
func (SetStatusAction) Kind() ActionKind        { return ActionSetStatus }
func (AddTagAction) Kind() ActionKind           { return ActionAddTag }
func (MarkMonitoringAction) Kind() ActionKind   { return ActionMarkMonitoring }
func (SetSLADeadlinesAction) Kind() ActionKind  { return ActionSetSLADeadlines }
func (SetSLADefinitionAction) Kind() ActionKind { return ActionSetSLADefinition }

// DecodeRuleAction rebuilds a typed action from its stored kind and JSON
// parameter payload.
func DecodeRuleAction(kind ActionKind, params []byte) (RuleAction, error) {
	if len(params) == 0 {
		params = []byte("{}")
	}
	switch kind {
	case ActionDeleteTicket:
		return DeleteTicketAction{}, nil
	case ActionReassign:
		var a ReassignAction
		return a, json.Unmarshal(params, &a)
	case ActionForkTicket:
		var a ForkTicketAction
		return a, json.Unmarshal(params, &a)
	case ActionSetPriority:
		var a SetPriorityAction
		return a, json.Unmarshal(params, &a)
	case ActionSetStatus:
		var a SetStatusAction
		return a, json.Unmarshal(params, &a)
	case ActionAddTag:
		var a AddTagAction
		return a, json.Unmarshal(params, &a)
	case ActionMarkMonitoring:
		var a MarkMonitoringAction
		return a, json.Unmarshal(params, &a)
	case ActionSetSLADeadlines:
		var a SetSLADeadlinesAction
		return a, json.Unmarshal(params, &a)
	case ActionSetSLADefinition:
		var a SetSLADefinitionAction
		return a, json.Unmarshal(params, &a)
	}
	return nil, fmt.Errorf("unknown rule action kind %q", kind)
}

// ProcessingRule is a tenant-defined pattern/action pair. Read-only to the
// engine except for the trigger counters.
type ProcessingRule struct {
	ID              int64
	TenantID        string
	Name            string
	Enabled         bool
	Target          RuleTarget
	SearchText      string
	CaseSensitive   bool
	Action          RuleAction
	TimesTriggered  int64
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RuleExecutionResult classifies the outcome of one rule application.
type RuleExecutionResult string

const (
	RuleResultSuccess RuleExecutionResult = "success"
	RuleResultFailure RuleExecutionResult = "failure"
	RuleResultSkipped RuleExecutionResult = "skipped"
)

// RuleExecution is an append-only audit record of one rule application.
type RuleExecution struct {
	ID           string
	TenantID     string
	RuleID       int64
	TicketID     int64
	Action       ActionKind
	Result       RuleExecutionResult
	ErrorMessage string
	CreatedAt    time.Time
}
