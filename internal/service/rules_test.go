package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/testutil"
)

func newRule(id int64, action domain.RuleAction) *domain.ProcessingRule {
	return &domain.ProcessingRule{
		ID:         id,
		TenantID:   "t1",
		Name:       "test rule",
		Enabled:    true,
		Target:     domain.RuleTargetBoth,
		SearchText: "disk",
		Action:     action,
	}
}

func TestExecuteRuleOnTicket(t *testing.T) {
	ctx := context.Background()
	svc := NewRuleService(1000, zap.NewNop())

	t.Run("disabled rule records skipped", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Status: domain.TicketStatusOpen})
		rule := newRule(1, domain.SetPriorityAction{Priority: domain.TicketPriorityHigh})
		rule.Enabled = false
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		assert.Equal(t, domain.RuleResultSkipped, execution.Result)
		assert.Equal(t, domain.TicketPriority(""), mem.Tickets[ticket.ID].Priority)
	})

	t.Run("reassign promotes open to in progress", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Status: domain.TicketStatusOpen})
		rule := newRule(2, domain.ReassignAction{AssigneeID: "agent-1"})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		require.Equal(t, domain.RuleResultSuccess, execution.Result)

		stored := mem.Tickets[ticket.ID]
		assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
		require.NotNil(t, stored.AssigneeID)
		assert.Equal(t, "agent-1", *stored.AssigneeID)
		assert.Equal(t, domain.PoolStatusAssigned, stored.PoolStatus)
	})

	t.Run("reassign keeps resolved status", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Status: domain.TicketStatusResolved})
		rule := newRule(3, domain.ReassignAction{AssigneeID: "agent-2"})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		require.Equal(t, domain.RuleResultSuccess, execution.Result)
		assert.Equal(t, domain.TicketStatusResolved, mem.Tickets[ticket.ID].Status)
	})

	t.Run("add tag deduplicates", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Status: domain.TicketStatusOpen, Tags: []string{"urgent"}})
		rule := newRule(4, domain.AddTagAction{Tag: "urgent"})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		require.Equal(t, domain.RuleResultSuccess, execution.Result)
		assert.Equal(t, []string{"urgent"}, mem.Tickets[ticket.ID].Tags)
	})

	t.Run("fork copies with forwarding prefix", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{
			TenantID: "t1",
			Title:    "Printer down",
			Body:     "It is broken",
			Status:   domain.TicketStatusOpen,
			Priority: domain.TicketPriorityHigh,
		})
		rule := newRule(5, domain.ForkTicketAction{TargetCustomerID: "cust-9"})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		require.Equal(t, domain.RuleResultSuccess, execution.Result)
		require.Len(t, mem.Tickets, 2)

		var fork *domain.Ticket
		for id, stored := range mem.Tickets {
			if id != ticket.ID {
				fork = stored
			}
		}
		require.NotNil(t, fork)
		assert.Equal(t, "FW: Printer down", fork.Title)
		assert.Contains(t, fork.Body, "It is broken")
		assert.Equal(t, domain.TicketPriorityHigh, fork.Priority)
		require.NotNil(t, fork.CustomerID)
		assert.Equal(t, "cust-9", *fork.CustomerID)
	})

	t.Run("monitoring merge preserves existing keys", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{
			Status:           domain.TicketStatusOpen,
			MonitoringSource: true,
			MonitoringMeta:   map[string]any{"host": "db-1"},
		})
		rule := newRule(6, domain.MarkMonitoringAction{Metadata: map[string]any{"host": "other", "check": "disk"}})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		require.Equal(t, domain.RuleResultSuccess, execution.Result)

		stored := mem.Tickets[ticket.ID]
		assert.True(t, stored.MonitoringSource)
		assert.Equal(t, "db-1", stored.MonitoringMeta["host"])
		assert.Equal(t, "disk", stored.MonitoringMeta["check"])
	})

	t.Run("invalid priority records failure without propagating", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Status: domain.TicketStatusOpen})
		rule := newRule(7, domain.SetPriorityAction{Priority: "BOGUS"})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		assert.Equal(t, domain.RuleResultFailure, execution.Result)
		assert.Contains(t, execution.ErrorMessage, "invalid priority")
		assert.Equal(t, int64(0), mem.Rules[rule.ID].TimesTriggered)
	})

	t.Run("success bumps trigger counters and audits", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Status: domain.TicketStatusOpen})
		rule := newRule(8, domain.SetStatusAction{Status: domain.TicketStatusClosed})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		require.Equal(t, domain.RuleResultSuccess, execution.Result)
		assert.Equal(t, int64(1), mem.Rules[rule.ID].TimesTriggered)
		assert.NotNil(t, mem.Rules[rule.ID].LastTriggeredAt)
		require.Len(t, mem.Activities, 1)
		assert.Equal(t, "rule_action", mem.Activities[0].Kind)
		require.Len(t, mem.Executions, 1)
	})

	t.Run("missing sla definition fails the action", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Status: domain.TicketStatusOpen})
		rule := newRule(9, domain.SetSLADefinitionAction{SLADefinitionID: 99, Source: domain.SLASourceTicket})
		mem.Rules[rule.ID] = rule

		execution := svc.ExecuteRuleOnTicket(ctx, mem.Store(), rule, ticket.ID)
		assert.Equal(t, domain.RuleResultFailure, execution.Result)
		assert.Contains(t, execution.ErrorMessage, "not found")
	})
}

func TestFindMatchingTickets(t *testing.T) {
	ctx := context.Background()
	svc := NewRuleService(2, zap.NewNop())

	mem := testutil.NewMemStore()
	mem.AddTicket(&domain.Ticket{Title: "Disk full on db-1", Status: domain.TicketStatusOpen})
	mem.AddTicket(&domain.Ticket{Body: "ran out of disk", Status: domain.TicketStatusOpen})
	mem.AddTicket(&domain.Ticket{Title: "DISK alert", Status: domain.TicketStatusOpen})
	mem.AddTicket(&domain.Ticket{Title: "Unrelated", Status: domain.TicketStatusOpen})

	rule := newRule(1, domain.AddTagAction{Tag: "storage"})
	tickets, err := svc.FindMatchingTickets(ctx, mem.Store(), rule)
	require.NoError(t, err)
	// Three tickets match but the limit caps the result.
	assert.Len(t, tickets, 2)

	rule.CaseSensitive = true
	svc = NewRuleService(100, zap.NewNop())
	tickets, err = svc.FindMatchingTickets(ctx, mem.Store(), rule)
	require.NoError(t, err)
	// Only the lowercase body match survives case sensitivity.
	assert.Len(t, tickets, 1)
}

func TestMatchesTicket(t *testing.T) {
	svc := NewRuleService(100, zap.NewNop())
	ticket := &domain.Ticket{Title: "Disk full on db-1", Body: "volume at 98%"}

	rule := newRule(1, domain.AddTagAction{Tag: "storage"})
	assert.True(t, svc.MatchesTicket(rule, ticket))

	rule.Target = domain.RuleTargetBody
	assert.False(t, svc.MatchesTicket(rule, ticket))

	rule.Target = domain.RuleTargetTitle
	rule.CaseSensitive = true
	assert.False(t, svc.MatchesTicket(rule, ticket))

	rule.SearchText = "Disk"
	assert.True(t, svc.MatchesTicket(rule, ticket))
}

func TestApplyEnabledRules(t *testing.T) {
	ctx := context.Background()
	svc := NewRuleService(100, zap.NewNop())

	t.Run("runs matching rules in id order", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Title: "disk alert", Status: domain.TicketStatusOpen})

		tag := newRule(1, domain.AddTagAction{Tag: "storage"})
		priority := newRule(2, domain.SetPriorityAction{Priority: domain.TicketPriorityHigh})
		unrelated := newRule(3, domain.SetStatusAction{Status: domain.TicketStatusClosed})
		unrelated.SearchText = "network"
		disabled := newRule(4, domain.SetStatusAction{Status: domain.TicketStatusClosed})
		disabled.Enabled = false
		for _, r := range []*domain.ProcessingRule{tag, priority, unrelated, disabled} {
			mem.Rules[r.ID] = r
		}

		executions, err := svc.ApplyEnabledRules(ctx, mem.Store(), ticket.ID)
		require.NoError(t, err)
		require.Len(t, executions, 2)
		assert.Equal(t, int64(1), executions[0].RuleID)
		assert.Equal(t, int64(2), executions[1].RuleID)

		stored := mem.Tickets[ticket.ID]
		assert.Equal(t, []string{"storage"}, stored.Tags)
		assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
		assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	})

	t.Run("delete stops the chain", func(t *testing.T) {
		mem := testutil.NewMemStore()
		ticket := mem.AddTicket(&domain.Ticket{Title: "disk spam", Status: domain.TicketStatusOpen})

		del := newRule(1, domain.DeleteTicketAction{})
		after := newRule(2, domain.AddTagAction{Tag: "storage"})
		mem.Rules[del.ID] = del
		mem.Rules[after.ID] = after

		executions, err := svc.ApplyEnabledRules(ctx, mem.Store(), ticket.ID)
		require.NoError(t, err)
		require.Len(t, executions, 1)
		assert.Equal(t, domain.RuleResultSuccess, executions[0].Result)
		assert.Empty(t, mem.Tickets)
	})

	t.Run("missing ticket returns not found", func(t *testing.T) {
		mem := testutil.NewMemStore()
		_, err := svc.ApplyEnabledRules(ctx, mem.Store(), 42)
		assert.Error(t, err)
	})
}
