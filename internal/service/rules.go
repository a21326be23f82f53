package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// RuleService pattern-matches tenant processing rules against tickets and
// applies their actions. Used synchronously on ticket creation and via the
// batch runner for bulk backfills.
type RuleService struct {
	matchLimit int
	logger     *zap.Logger
}

// NewRuleService constructs the service. matchLimit bounds
// FindMatchingTickets to the most recent N matches.
func NewRuleService(matchLimit int, logger *zap.Logger) *RuleService {
	if matchLimit <= 0 {
		matchLimit = 1000
	}
	return &RuleService{matchLimit: matchLimit, logger: logger}
}

// FindMatchingTickets returns the tickets whose title/body contains the
// rule's search text, newest first, bounded to the match limit.
func (s *RuleService) FindMatchingTickets(ctx context.Context, store *repository.Store, rule *domain.ProcessingRule) ([]domain.Ticket, error) {
	return store.Tickets.SearchByText(ctx, rule.Target, rule.SearchText, rule.CaseSensitive, s.matchLimit)
}

// MatchesTicket reports whether the rule's text filter matches one ticket.
func (s *RuleService) MatchesTicket(rule *domain.ProcessingRule, ticket *domain.Ticket) bool {
	needle := rule.SearchText
	title := ticket.Title
	body := ticket.Body
	if !rule.CaseSensitive {
		needle = strings.ToLower(needle)
		title = strings.ToLower(title)
		body = strings.ToLower(body)
	}
	switch rule.Target {
	case domain.RuleTargetTitle:
		return strings.Contains(title, needle)
	case domain.RuleTargetBody:
		return strings.Contains(body, needle)
	}
	return strings.Contains(title, needle) || strings.Contains(body, needle)
}

// ApplyEnabledRules runs every enabled rule that matches the ticket, in
// rule id order. This is the synchronous path invoked when a ticket is
// created or ingested.
func (s *RuleService) ApplyEnabledRules(ctx context.Context, store *repository.Store, ticketID int64) ([]*domain.RuleExecution, error) {
	ticket, err := store.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	rules, err := store.Rules.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	var executions []*domain.RuleExecution
	for i := range rules {
		rule := &rules[i]
		if !s.MatchesTicket(rule, ticket) {
			continue
		}
		executions = append(executions, s.ExecuteRuleOnTicket(ctx, store, rule, ticketID))
		if rule.Action.Kind() == domain.ActionDeleteTicket {
			// The ticket is gone; later rules have nothing to act on.
			break
		}
	}
	return executions, nil
}

// ExecuteRuleOnTicket applies the rule to one ticket and records the
// outcome. Errors are captured in the execution record, never propagated;
// rule execution is always handled, success or failure.
func (s *RuleService) ExecuteRuleOnTicket(ctx context.Context, store *repository.Store, rule *domain.ProcessingRule, ticketID int64) *domain.RuleExecution {
	if !rule.Enabled {
		return s.RecordExecution(ctx, store, rule, ticketID, domain.RuleResultSkipped, "rule disabled")
	}
	if err := s.AttemptRuleOnTicket(ctx, store, rule, ticketID); err != nil {
		return s.RecordExecution(ctx, store, rule, ticketID, domain.RuleResultFailure, err.Error())
	}
	return s.RecordExecution(ctx, store, rule, ticketID, domain.RuleResultSuccess, "")
}

// AttemptRuleOnTicket applies the rule's action once, without recording.
// The batch runner wraps this in its retry policy and records the final
// outcome itself.
func (s *RuleService) AttemptRuleOnTicket(ctx context.Context, store *repository.Store, rule *domain.ProcessingRule, ticketID int64) error {
	switch action := rule.Action.(type) {
	case domain.DeleteTicketAction:
		return store.Tickets.Delete(ctx, ticketID)

	case domain.ReassignAction:
		if action.AssigneeID == "" {
			return errors.New("reassign action requires an assignee id")
		}
		ticket, err := store.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		status := ticket.Status
		if status == domain.TicketStatusOpen {
			status = domain.TicketStatusInProgress
		}
		return store.Tickets.SetAssignee(ctx, ticketID, action.AssigneeID, status)

	case domain.ForkTicketAction:
		if action.TargetCustomerID == "" {
			return errors.New("fork action requires a target customer id")
		}
		ticket, err := store.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		fork := &domain.Ticket{
			TenantID:   ticket.TenantID,
			Title:      "FW: " + ticket.Title,
			Body:       fmt.Sprintf("Forwarded from ticket #%d\n\n%s", ticket.ID, ticket.Body),
			Status:     domain.TicketStatusOpen,
			Priority:   ticket.Priority,
			CustomerID: &action.TargetCustomerID,
			Tags:       ticket.Tags,
		}
		return store.Tickets.Create(ctx, fork)

	case domain.SetPriorityAction:
		if !validPriority(action.Priority) {
			return fmt.Errorf("invalid priority %q", action.Priority)
		}
		return store.Tickets.SetPriority(ctx, ticketID, action.Priority)

	case domain.SetStatusAction:
		if !validStatus(action.Status) {
			return fmt.Errorf("invalid status %q", action.Status)
		}
		return store.Tickets.SetStatus(ctx, ticketID, action.Status)

	case domain.AddTagAction:
		if action.Tag == "" {
			return errors.New("add tag action requires a tag")
		}
		ticket, err := store.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		for _, tag := range ticket.Tags {
			if tag == action.Tag {
				return nil // already tagged
			}
		}
		return store.Tickets.SetTags(ctx, ticketID, append(ticket.Tags, action.Tag))

	case domain.MarkMonitoringAction:
		ticket, err := store.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		merged := make(map[string]any, len(ticket.MonitoringMeta)+len(action.Metadata))
		for key, value := range action.Metadata {
			merged[key] = value
		}
		// Previously-set fields win over the incoming metadata.
		for key, value := range ticket.MonitoringMeta {
			merged[key] = value
		}
		return store.Tickets.SetMonitoring(ctx, ticketID, merged)

	case domain.SetSLADeadlinesAction:
		if action.ResponseDueAt == nil && action.ResolveDueAt == nil {
			return errors.New("set sla deadlines action requires at least one deadline")
		}
		return store.Tickets.SetSLADeadlines(ctx, ticketID, action.ResponseDueAt, action.ResolveDueAt)

	case domain.SetSLADefinitionAction:
		def, err := store.SLAs.GetDefinition(ctx, action.SLADefinitionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("sla definition %d not found", action.SLADefinitionID)
			}
			return err
		}
		return store.Tickets.SetSLAAssignment(ctx, ticketID, &def.ID, action.Source, time.Now())
	}
	return fmt.Errorf("unhandled rule action kind %q", rule.Action.Kind())
}

// RecordExecution appends the execution audit record. Successful
// executions also bump the rule's trigger counters and write an audit
// activity entry.
func (s *RuleService) RecordExecution(ctx context.Context, store *repository.Store, rule *domain.ProcessingRule, ticketID int64, result domain.RuleExecutionResult, errorMessage string) *domain.RuleExecution {
	execution := &domain.RuleExecution{
		ID:           uuid.NewString(),
		TenantID:     rule.TenantID,
		RuleID:       rule.ID,
		TicketID:     ticketID,
		Action:       rule.Action.Kind(),
		Result:       result,
		ErrorMessage: errorMessage,
	}
	if err := store.Rules.CreateExecution(ctx, execution); err != nil {
		s.logger.Error("record rule execution",
			zap.Int64("rule_id", rule.ID),
			zap.Int64("ticket_id", ticketID),
			zap.Error(err))
	}

	if result == domain.RuleResultSuccess {
		now := time.Now()
		if err := store.Rules.RecordTriggered(ctx, rule.ID, now); err != nil {
			s.logger.Warn("update rule trigger counters", zap.Int64("rule_id", rule.ID), zap.Error(err))
		}
		activity := &domain.Activity{
			ID:       uuid.NewString(),
			TenantID: rule.TenantID,
			TicketID: &ticketID,
			Kind:     "rule_action",
			Message:  fmt.Sprintf("rule %q applied %s", rule.Name, rule.Action.Kind()),
			Detail: map[string]any{
				"rule_id": rule.ID,
				"action":  string(rule.Action.Kind()),
			},
		}
		if err := store.Activities.Create(ctx, activity); err != nil {
			s.logger.Warn("record rule activity", zap.Error(err))
		}
	}
	return execution
}

func validPriority(priority domain.TicketPriority) bool {
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
		return true
	}
	return false
}

func validStatus(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved,
		domain.TicketStatusClosed, domain.TicketStatusCancelled:
		return true
	}
	return false
}
