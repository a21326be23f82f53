package scheduler

import (
	"context"
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

func testConfig() Config {
	return Config{
		PollTick:        30 * time.Second,
		MinInterval:     0,
		DefaultInterval: 0,
		MaxRunBudget:    10 * time.Minute,
		TenantTimeout:   time.Minute,
		TicketBatchSize: 500,
		TicketPacing:    0,
	}
}

func testTenant(id string) domain.Tenant {
	return domain.Tenant{ID: id, Name: id, SLAProcessingEnabled: true, IsActive: true}
}

func newTestScheduler(cfg Config, tenants []domain.Tenant, stores map[string]*testutil.MemStore, at time.Time) *Scheduler {
	metrics := observability.NewMetrics()
	s := New(cfg, Dependencies{
		Tenants:  &testutil.MemTenants{Tenants: tenants},
		Stores:   testutil.NewMemProvider(stores),
		Percent:  &service.PercentCalculator{Now: func() time.Time { return at }},
		Notifier: service.NewNotificationWriter(nil, metrics, zap.NewNop()),
		Metrics:  metrics,
		Logger:   zap.NewNop(),
	})
	s.now = func() time.Time { return at }
	return s
}

func slaTicket(mem *testutil.MemStore, created time.Time, responseDue time.Time) *domain.Ticket {
	defID := int64(1)
	return mem.AddTicket(&domain.Ticket{
		TenantID:        "t1",
		Status:          domain.TicketStatusOpen,
		SLADefinitionID: &defID,
		CreatedAt:       created,
		ResponseDueAt:   &responseDue,
	})
}

func addDefinition(mem *testutil.MemStore) {
	mem.Definitions[1] = &domain.SLADefinition{
		ID:                1,
		TenantID:          "t1",
		Name:              "standard",
		NearBreachPercent: 85,
		PastBreachPercent: 120,
		IsActive:          true,
	}
}

func TestRunCycleNearThresholdFiresOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mem := testutil.NewMemStore()
	addDefinition(mem)
	// 85 minutes into a 100 minute window.
	slaTicket(mem, now.Add(-85*time.Minute), now.Add(15*time.Minute))

	s := newTestScheduler(testConfig(), []domain.Tenant{testTenant("t1")}, map[string]*testutil.MemStore{"t1": mem}, now)

	require.NoError(t, s.RunCycle(context.Background()))
	near := mem.NotificationsOfType(domain.NotificationResponseNear)
	require.Len(t, near, 1)
	assert.Equal(t, domain.SeverityWarning, near[0].Severity)
	require.NotNil(t, near[0].TicketID)

	// A second cycle sees the marker and stays quiet.
	require.NoError(t, s.RunCycle(context.Background()))
	assert.Len(t, mem.NotificationsOfType(domain.NotificationResponseNear), 1)
	assert.Len(t, mem.Notifications, 1)
}

func TestRunCycleDeepBreachFiresEveryCrossedThreshold(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mem := testutil.NewMemStore()
	addDefinition(mem)
	// 130 minutes into a 100 minute window: 130 percent.
	slaTicket(mem, now.Add(-130*time.Minute), now.Add(-30*time.Minute))

	s := newTestScheduler(testConfig(), []domain.Tenant{testTenant("t1")}, map[string]*testutil.MemStore{"t1": mem}, now)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Len(t, mem.NotificationsOfType(domain.NotificationResponsePast), 1)
	assert.Len(t, mem.NotificationsOfType(domain.NotificationResponseBreach), 1)
	assert.Len(t, mem.NotificationsOfType(domain.NotificationResponseNear), 1)

	// Most severe first.
	assert.Equal(t, domain.NotificationResponsePast, mem.Notifications[0].Type)
}

func TestRunCyclePausedTicketSkipsResolvePhase(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mem := testutil.NewMemStore()
	addDefinition(mem)

	defID := int64(1)
	responded := now.Add(-3 * time.Hour)
	resolveDue := now.Add(-time.Hour)
	mem.AddTicket(&domain.Ticket{
		TenantID:         "t1",
		Status:           domain.TicketStatusInProgress,
		PoolStatus:       domain.PoolStatusWaitingCustomer,
		SLADefinitionID:  &defID,
		CreatedAt:        responded,
		FirstRespondedAt: &responded,
		ResolveDueAt:     &resolveDue,
	})

	s := newTestScheduler(testConfig(), []domain.Tenant{testTenant("t1")}, map[string]*testutil.MemStore{"t1": mem}, now)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Empty(t, mem.Notifications)
}

func TestRunCycleKillSwitch(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mem := testutil.NewMemStore()
	addDefinition(mem)
	slaTicket(mem, now.Add(-130*time.Minute), now.Add(-30*time.Minute))

	tenant := testTenant("t1")
	tenant.SLAProcessingEnabled = false
	s := newTestScheduler(testConfig(), []domain.Tenant{tenant}, map[string]*testutil.MemStore{"t1": mem}, now)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Empty(t, mem.Notifications)
}

func TestRunCycleTenantIsolation(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	memB := testutil.NewMemStore()
	addDefinition(memB)
	breached := slaTicket(memB, now.Add(-130*time.Minute), now.Add(-30*time.Minute))
	breached.TenantID = "b"

	// Tenant "a" has no store; its failure must not stop tenant "b".
	tenants := []domain.Tenant{testTenant("a"), testTenant("b")}
	s := newTestScheduler(testConfig(), tenants, map[string]*testutil.MemStore{"b": memB}, now)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.NotEmpty(t, memB.Notifications)
}

func TestTenantCadence(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mem := testutil.NewMemStore()
	addDefinition(mem)

	cfg := testConfig()
	cfg.MinInterval = 60 * time.Second
	s := newTestScheduler(cfg, []domain.Tenant{testTenant("t1")}, map[string]*testutil.MemStore{"t1": mem}, now)

	require.NoError(t, s.RunCycle(context.Background()))

	// A breach appears right after the first cycle.
	slaTicket(mem, now.Add(-130*time.Minute), now.Add(-30*time.Minute))

	// 30 seconds later the tenant is not due yet.
	later := now.Add(30 * time.Second)
	s.now = func() time.Time { return later }
	require.NoError(t, s.RunCycle(context.Background()))
	assert.Empty(t, mem.Notifications)

	// Past the minimum interval it runs again.
	later = now.Add(90 * time.Second)
	require.NoError(t, s.RunCycle(context.Background()))
	assert.NotEmpty(t, mem.Notifications)
}

func TestBeginCycleGuardsOverlap(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(testConfig(), nil, nil, now)

	s.running = true
	s.runStartedAt = now.Add(-time.Minute)
	assert.False(t, s.beginCycle())

	// A run stuck past the budget gets force-cleared.
	s.runStartedAt = now.Add(-11 * time.Minute)
	assert.True(t, s.beginCycle())
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mem := testutil.NewMemStore()
	addDefinition(mem)
	s := newTestScheduler(testConfig(), []domain.Tenant{testTenant("t1")}, map[string]*testutil.MemStore{"t1": mem}, now)

	require.NoError(t, s.RunCycle(context.Background()))

	status := s.Snapshot()
	assert.False(t, status.Running)
	assert.Equal(t, int64(1), status.CompletedCycles)
	require.NotNil(t, status.LastCycleAt)
	assert.Equal(t, now, *status.LastCycleAt)
	assert.Contains(t, status.LastRunByTenant, "t1")
}
