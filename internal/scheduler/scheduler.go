package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
)

// Config carries the scheduler's timing knobs as durations.
type Config struct {
	PollTick        time.Duration
	MinInterval     time.Duration
	DefaultInterval time.Duration
	MaxRunBudget    time.Duration
	TenantTimeout   time.Duration
	TicketBatchSize int
	TicketPacing    time.Duration
}

// ConfigFrom converts the env-facing settings into scheduler durations.
func ConfigFrom(cfg config.SchedulerConfig) Config {
	return Config{
		PollTick:        time.Duration(cfg.PollTickSeconds) * time.Second,
		MinInterval:     time.Duration(cfg.MinIntervalSeconds) * time.Second,
		DefaultInterval: time.Duration(cfg.DefaultIntervalSeconds) * time.Second,
		MaxRunBudget:    time.Duration(cfg.MaxRunBudgetSeconds) * time.Second,
		TenantTimeout:   time.Duration(cfg.TenantTimeoutSeconds) * time.Second,
		TicketBatchSize: cfg.TicketBatchSize,
		TicketPacing:    time.Duration(cfg.TicketPacingMillis) * time.Millisecond,
	}
}

// StoreProvider hands out the repository bundle for a tenant's data store.
type StoreProvider interface {
	TenantStore(ctx context.Context, tenant domain.Tenant) (*repository.Store, error)
}

// Dependencies bundles the scheduler's collaborators.
type Dependencies struct {
	Tenants  repository.TenantRepository
	Stores   StoreProvider
	Percent  *service.PercentCalculator
	Notifier *service.NotificationWriter
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Status is the ops-API view of scheduler state.
type Status struct {
	Running         bool                 `json:"running"`
	RunStartedAt    *time.Time           `json:"run_started_at,omitempty"`
	LastCycleAt     *time.Time           `json:"last_cycle_at,omitempty"`
	CompletedCycles int64                `json:"completed_cycles"`
	LastRunByTenant map[string]time.Time `json:"last_run_by_tenant"`
}

// Scheduler drives periodic SLA evaluation across all active tenants. A
// single instance runs per process; the running flag plus the run budget
// keep overlapping cycles out even when a cycle stalls.
type Scheduler struct {
	cfg  Config
	deps Dependencies
	cron *cron.Cron
	now  func() time.Time

	mu              sync.Mutex
	running         bool
	runStartedAt    time.Time
	lastCycleAt     time.Time
	lastRunByTenant map[string]time.Time
}

// New creates a scheduler.
func New(cfg Config, deps Dependencies) *Scheduler {
	return &Scheduler{
		cfg:             cfg,
		deps:            deps,
		now:             time.Now,
		lastRunByTenant: make(map[string]time.Time),
	}
}

// Start begins the poll loop. The first cycle fires after one poll tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.PollTick)
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.RunCycle(ctx); err != nil {
			s.deps.Logger.Error("scheduler cycle", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.deps.Logger.Info("scheduler started", zap.Duration("poll_tick", s.cfg.PollTick))
	return nil
}

// Stop halts the poll loop, waiting for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunCycle performs one evaluation pass over the due tenants. Returns nil
// without doing work when a previous cycle is still inside its run budget.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	if !s.beginCycle() {
		return nil
	}
	start := s.now()
	defer s.endCycle(start)

	tenants, err := s.deps.Tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	for _, tenant := range tenants {
		if !s.tenantDue(tenant, start) {
			continue
		}
		tenantCtx, cancel := context.WithTimeout(ctx, s.cfg.TenantTimeout)
		err := s.processTenant(tenantCtx, tenant)
		cancel()
		if err != nil {
			// A failing tenant never blocks the rest of the fleet.
			s.deps.Logger.Error("process tenant",
				zap.String("tenant_id", tenant.ID),
				zap.Error(err))
			continue
		}
		s.markTenantRun(tenant.ID, start)
	}

	s.deps.Metrics.RecordSchedulerCycle()
	return nil
}

// Snapshot returns the current scheduler status.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		Running:         s.running,
		CompletedCycles: s.deps.Metrics.SchedulerCycles(),
		LastRunByTenant: make(map[string]time.Time, len(s.lastRunByTenant)),
	}
	if s.running {
		started := s.runStartedAt
		status.RunStartedAt = &started
	}
	if !s.lastCycleAt.IsZero() {
		last := s.lastCycleAt
		status.LastCycleAt = &last
	}
	for id, at := range s.lastRunByTenant {
		status.LastRunByTenant[id] = at
	}
	return status
}

func (s *Scheduler) beginCycle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		stuck := s.now().Sub(s.runStartedAt)
		if stuck < s.cfg.MaxRunBudget {
			return false
		}
		s.deps.Logger.Warn("force-clearing stuck scheduler run", zap.Duration("stuck_for", stuck))
	}
	s.running = true
	s.runStartedAt = s.now()
	return true
}

func (s *Scheduler) endCycle(startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastCycleAt = startedAt
}

// tenantDue applies the per-tenant cadence: the configured interval,
// defaulted when unset, floored at the global minimum.
func (s *Scheduler) tenantDue(tenant domain.Tenant, now time.Time) bool {
	interval := s.cfg.DefaultInterval
	if tenant.SLACheckIntervalSeconds > 0 {
		interval = time.Duration(tenant.SLACheckIntervalSeconds) * time.Second
	}
	if interval < s.cfg.MinInterval {
		interval = s.cfg.MinInterval
	}

	s.mu.Lock()
	last, ok := s.lastRunByTenant[tenant.ID]
	s.mu.Unlock()
	return !ok || now.Sub(last) >= interval
}

func (s *Scheduler) markTenantRun(tenantID string, at time.Time) {
	s.mu.Lock()
	s.lastRunByTenant[tenantID] = at
	s.mu.Unlock()
}

// processTenant evaluates one tenant's open SLA-bearing tickets. The kill
// switch is honored before touching the tenant's store at all.
func (s *Scheduler) processTenant(ctx context.Context, tenant domain.Tenant) error {
	if !tenant.SLAProcessingEnabled {
		s.deps.Logger.Debug("sla processing disabled", zap.String("tenant_id", tenant.ID))
		return nil
	}

	store, err := s.deps.Stores.TenantStore(ctx, tenant)
	if err != nil {
		return fmt.Errorf("tenant store: %w", err)
	}

	items, err := store.Tickets.ListOpenWithSLA(ctx, s.cfg.TicketBatchSize)
	if err != nil {
		return fmt.Errorf("list open tickets: %w", err)
	}

	for i := range items {
		if i > 0 && s.cfg.TicketPacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.TicketPacing):
			}
		}
		if err := s.EvaluateTicket(ctx, store, &items[i]); err != nil {
			s.deps.Logger.Error("evaluate ticket",
				zap.String("tenant_id", tenant.ID),
				zap.Int64("ticket_id", items[i].Ticket.ID),
				zap.Error(err))
		}
	}
	return nil
}

// EvaluateTicket runs both SLA phases for one ticket and emits any
// threshold notifications that have not fired yet.
func (s *Scheduler) EvaluateTicket(ctx context.Context, store *repository.Store, item *repository.TicketWithSLA) error {
	ticket := &item.Ticket
	def := item.Definition
	if def == nil || !def.IsActive {
		return nil
	}

	if !ticket.Responded() {
		percent := s.deps.Percent.ResponsePercent(ticket, item.Profile)
		if err := s.applyThresholds(ctx, store, ticket, def, domain.PhaseResponse, percent); err != nil {
			return err
		}
	}

	if ticket.ResolvedAt == nil && !ticket.Paused() {
		percent := s.deps.Percent.ResolvePercent(ticket, item.Profile)
		if err := s.applyThresholds(ctx, store, ticket, def, domain.PhaseResolve, percent); err != nil {
			return err
		}
	}
	return nil
}

type thresholdCrossing struct {
	typ      domain.NotificationType
	severity domain.NotificationSeverity
	at       float64
	label    string
}

// applyThresholds fires every crossed-but-unmarked threshold, most severe
// first so a freshly discovered deep breach reports PAST before NEAR.
func (s *Scheduler) applyThresholds(ctx context.Context, store *repository.Store, ticket *domain.Ticket, def *domain.SLADefinition, phase domain.SLAPhase, percent float64) error {
	crossings := []thresholdCrossing{
		{typ: pastType(phase), severity: domain.SeverityCritical, at: def.PastPercent(), label: "past breach"},
		{typ: breachType(phase), severity: domain.SeverityCritical, at: 100, label: "breached"},
		{typ: nearType(phase), severity: domain.SeverityWarning, at: def.NearPercent(), label: "near breach"},
	}

	for _, crossing := range crossings {
		if percent < crossing.at {
			continue
		}
		if ticket.Markers.Get(crossing.typ) != nil {
			continue
		}
		if err := s.fire(ctx, store, ticket, def, phase, percent, crossing); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, store *repository.Store, ticket *domain.Ticket, def *domain.SLADefinition, phase domain.SLAPhase, percent float64, crossing thresholdCrossing) error {
	notification := &domain.Notification{
		TenantID: ticket.TenantID,
		TicketID: &ticket.ID,
		Type:     crossing.typ,
		Severity: crossing.severity,
		Message:  fmt.Sprintf("Ticket #%d %s SLA %s (%.1f%%)", ticket.ID, phase, crossing.label, percent),
		Payload: map[string]any{
			"ticket_id":         ticket.ID,
			"phase":             string(phase),
			"percent":           percent,
			"threshold":         crossing.at,
			"sla_definition_id": def.ID,
			"sla_name":          def.Name,
			"response_due_at":   ticket.ResponseDueAt,
			"resolve_due_at":    ticket.ResolveDueAt,
		},
	}
	if err := s.deps.Notifier.Write(ctx, store.Notifications, notification); err != nil {
		return fmt.Errorf("write %s notification: %w", crossing.typ, err)
	}

	now := s.now()
	if err := store.Tickets.SetNotifiedMarker(ctx, ticket.ID, crossing.typ, now); err != nil {
		return fmt.Errorf("set %s marker: %w", crossing.typ, err)
	}
	ticket.Markers.Set(crossing.typ, now)

	s.deps.Logger.Info("sla notification",
		zap.String("tenant_id", ticket.TenantID),
		zap.Int64("ticket_id", ticket.ID),
		zap.String("type", string(crossing.typ)),
		zap.Float64("percent", percent))
	return nil
}

func nearType(phase domain.SLAPhase) domain.NotificationType {
	if phase == domain.PhaseResolve {
		return domain.NotificationResolveNear
	}
	return domain.NotificationResponseNear
}

func breachType(phase domain.SLAPhase) domain.NotificationType {
	if phase == domain.PhaseResolve {
		return domain.NotificationResolveBreach
	}
	return domain.NotificationResponseBreach
}

func pastType(phase domain.SLAPhase) domain.NotificationType {
	if phase == domain.PhaseResolve {
		return domain.NotificationResolvePast
	}
	return domain.NotificationResponsePast
}
