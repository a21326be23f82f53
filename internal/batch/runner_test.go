package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/testutil"
)

func testRunnerConfig() Config {
	return Config{
		ChunkSize:        2,
		MaxAttempts:      3,
		Backoff:          time.Millisecond,
		BreakerThreshold: 2,
		ChunkPacing:      0,
		JobQueueSize:     1,
	}
}

func newTestRunner(cfg Config, stores map[string]*testutil.MemStore) *Runner {
	return NewRunner(cfg, Dependencies{
		Stores:   testutil.NewMemProvider(stores),
		Rules:    service.NewRuleService(1000, zap.NewNop()),
		Notifier: service.NewNotificationWriter(nil, observability.NewMetrics(), zap.NewNop()),
		Logger:   zap.NewNop(),
	})
}

func tagRule(id int64) *domain.ProcessingRule {
	return &domain.ProcessingRule{
		ID:         id,
		TenantID:   "t1",
		Name:       "tag matches",
		Enabled:    true,
		Target:     domain.RuleTargetBoth,
		SearchText: "disk",
		Action:     domain.AddTagAction{Tag: "storage"},
	}
}

func seedTickets(mem *testutil.MemStore, n int) []domain.Ticket {
	tickets := make([]domain.Ticket, 0, n)
	for i := 0; i < n; i++ {
		ticket := mem.AddTicket(&domain.Ticket{
			TenantID: "t1",
			Title:    "disk alert",
			Status:   domain.TicketStatusOpen,
		})
		tickets = append(tickets, *ticket)
	}
	return tickets
}

func TestRunJobRetriesTransientFailures(t *testing.T) {
	mem := testutil.NewMemStore()
	rule := tagRule(1)
	mem.Rules[rule.ID] = rule
	tickets := seedTickets(mem, 3)

	// First read of each ticket fails with a transient error.
	attempts := make(map[int64]int)
	mem.FailTicketGet = func(id int64) error {
		attempts[id]++
		if attempts[id] == 1 {
			return errors.New("read tcp: connection reset by peer")
		}
		return nil
	}

	runner := newTestRunner(testRunnerConfig(), map[string]*testutil.MemStore{"t1": mem})
	result := runner.runJob(context.Background(), job{
		tenant:    domain.Tenant{ID: "t1", IsActive: true},
		rule:      rule,
		tickets:   tickets,
		startedAt: time.Now(),
	})

	assert.Equal(t, 3, result.succeeded)
	assert.Zero(t, result.failed)
	assert.False(t, result.aborted)

	// One execution record per ticket despite the retries.
	require.Len(t, mem.Executions, 3)
	for _, e := range mem.Executions {
		assert.Equal(t, domain.RuleResultSuccess, e.Result)
	}
	assert.Equal(t, int64(3), mem.Rules[rule.ID].TimesTriggered)
}

func TestRunJobDoesNotRetryPermanentFailures(t *testing.T) {
	mem := testutil.NewMemStore()
	rule := tagRule(1)
	mem.Rules[rule.ID] = rule
	tickets := seedTickets(mem, 1)

	calls := 0
	mem.FailTicketGet = func(id int64) error {
		calls++
		return errors.New("permission denied")
	}

	runner := newTestRunner(testRunnerConfig(), map[string]*testutil.MemStore{"t1": mem})
	result := runner.runJob(context.Background(), job{
		tenant:  domain.Tenant{ID: "t1", IsActive: true},
		rule:    rule,
		tickets: tickets,
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.failed)
	require.Len(t, mem.Executions, 1)
	assert.Equal(t, domain.RuleResultFailure, mem.Executions[0].Result)
}

func TestRunJobBreakerAbortsBatch(t *testing.T) {
	mem := testutil.NewMemStore()
	rule := tagRule(1)
	mem.Rules[rule.ID] = rule
	tickets := seedTickets(mem, 5)

	mem.FailTicketGet = func(id int64) error {
		return errors.New("dial tcp: connection refused")
	}

	cfg := testRunnerConfig()
	cfg.MaxAttempts = 1
	runner := newTestRunner(cfg, map[string]*testutil.MemStore{"t1": mem})
	result := runner.runJob(context.Background(), job{
		tenant:  domain.Tenant{ID: "t1", IsActive: true},
		rule:    rule,
		tickets: tickets,
	})

	assert.True(t, result.aborted)
	assert.Equal(t, 2, result.failed)
	// Tickets after the breaker opened were never attempted.
	assert.Len(t, mem.Executions, 2)
}

func TestWriteCompletionNotice(t *testing.T) {
	mem := testutil.NewMemStore()
	rule := tagRule(1)

	runner := newTestRunner(testRunnerConfig(), map[string]*testutil.MemStore{"t1": mem})
	err := runner.writeCompletion(context.Background(), jobResult{
		tenant:    domain.Tenant{ID: "t1", IsActive: true},
		rule:      rule,
		matched:   10,
		succeeded: 8,
		failed:    2,
		errors:    []string{"ticket 4: boom", "ticket 7: boom"},
		duration:  1500 * time.Millisecond,
	})
	require.NoError(t, err)

	notices := mem.NotificationsOfType(domain.NotificationRuleRunComplete)
	require.Len(t, notices, 1)
	notice := notices[0]
	assert.Equal(t, domain.SeverityWarning, notice.Severity)
	assert.Nil(t, notice.TicketID)
	assert.Equal(t, 10, notice.Payload["matched"])
	assert.Equal(t, 2, notice.Payload["failed"])
	assert.Equal(t, int64(1500), notice.Payload["duration_ms"])

	// A clean run is informational.
	err = runner.writeCompletion(context.Background(), jobResult{
		tenant:    domain.Tenant{ID: "t1", IsActive: true},
		rule:      rule,
		matched:   3,
		succeeded: 3,
	})
	require.NoError(t, err)
	notices = mem.NotificationsOfType(domain.NotificationRuleRunComplete)
	require.Len(t, notices, 2)
}

func TestRunRuleInBackground(t *testing.T) {
	mem := testutil.NewMemStore()
	rule := tagRule(1)
	mem.Rules[rule.ID] = rule
	seedTickets(mem, 2)

	runner := newTestRunner(testRunnerConfig(), map[string]*testutil.MemStore{"t1": mem})
	tenant := domain.Tenant{ID: "t1", IsActive: true}

	matched, started, err := runner.RunRuleInBackground(context.Background(), tenant, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, matched)
	assert.True(t, started)

	// The single-slot queue is now full.
	_, started, err = runner.RunRuleInBackground(context.Background(), tenant, rule.ID)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, started)

	t.Run("disabled rule rejected", func(t *testing.T) {
		disabled := tagRule(2)
		disabled.Enabled = false
		mem.Rules[disabled.ID] = disabled

		_, started, err := runner.RunRuleInBackground(context.Background(), tenant, disabled.ID)
		assert.ErrorIs(t, err, ErrRuleDisabled)
		assert.False(t, started)
	})
}
