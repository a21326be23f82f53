package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
)

// maxReportedErrors bounds the error sample carried in the completion
// notice payload.
const maxReportedErrors = 10

var (
	// ErrRuleDisabled rejects background runs of disabled rules.
	ErrRuleDisabled = errors.New("rule is disabled")
	// ErrQueueFull rejects new runs while the job queue is saturated.
	ErrQueueFull = errors.New("batch job queue is full")
)

// Config tunes the background rule runner.
type Config struct {
	ChunkSize        int
	MaxAttempts      int
	Backoff          time.Duration
	BreakerThreshold int
	ChunkPacing      time.Duration
	JobQueueSize     int
}

// ConfigFrom converts the env-facing settings into runner durations.
func ConfigFrom(cfg config.BatchConfig) Config {
	return Config{
		ChunkSize:        cfg.ChunkSize,
		MaxAttempts:      cfg.MaxAttempts,
		Backoff:          time.Duration(cfg.BackoffMillis) * time.Millisecond,
		BreakerThreshold: cfg.BreakerThreshold,
		ChunkPacing:      time.Duration(cfg.ChunkPacingMillis) * time.Millisecond,
		JobQueueSize:     cfg.JobQueueSize,
	}
}

// StoreProvider hands out the repository bundle for a tenant's data store.
type StoreProvider interface {
	TenantStore(ctx context.Context, tenant domain.Tenant) (*repository.Store, error)
}

// Dependencies bundles the runner's collaborators.
type Dependencies struct {
	Stores     StoreProvider
	Rules      *service.RuleService
	Notifier   *service.NotificationWriter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

type job struct {
	tenant    domain.Tenant
	rule      *domain.ProcessingRule
	tickets   []domain.Ticket
	startedAt time.Time
}

type jobResult struct {
	tenant    domain.Tenant
	rule      *domain.ProcessingRule
	matched   int
	succeeded int
	failed    int
	aborted   bool
	errors    []string
	duration  time.Duration
}

// Runner executes rule batches in the background: one worker drains the
// job queue, a second goroutine turns finished jobs into completion
// notices. HTTP callers get an immediate matched count while the work
// proceeds asynchronously.
type Runner struct {
	cfg     Config
	deps    Dependencies
	jobs    chan job
	results chan jobResult
	wg      sync.WaitGroup
}

// NewRunner creates the runner.
func NewRunner(cfg Config, deps Dependencies) *Runner {
	queueSize := cfg.JobQueueSize
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Runner{
		cfg:     cfg,
		deps:    deps,
		jobs:    make(chan job, queueSize),
		results: make(chan jobResult, queueSize),
	}
}

// Start launches the work and completion goroutines.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(2)
	go r.workLoop(ctx)
	go r.completionLoop(ctx)
}

// Stop drains queued jobs and waits for both loops to exit.
func (r *Runner) Stop() {
	close(r.jobs)
	r.wg.Wait()
}

// RunRuleInBackground matches the rule synchronously and enqueues the
// batch for asynchronous execution. Returns the matched count, whether
// the job was accepted, and any lookup/matching error.
func (r *Runner) RunRuleInBackground(ctx context.Context, tenant domain.Tenant, ruleID int64) (int, bool, error) {
	store, err := r.deps.Stores.TenantStore(ctx, tenant)
	if err != nil {
		return 0, false, err
	}
	rule, err := store.Rules.GetByID(ctx, ruleID)
	if err != nil {
		return 0, false, err
	}
	if !rule.Enabled {
		return 0, false, ErrRuleDisabled
	}

	tickets, err := r.deps.Rules.FindMatchingTickets(ctx, store, rule)
	if err != nil {
		return 0, false, err
	}

	j := job{tenant: tenant, rule: rule, tickets: tickets, startedAt: time.Now()}
	select {
	case r.jobs <- j:
		return len(tickets), true, nil
	default:
		return len(tickets), false, ErrQueueFull
	}
}

func (r *Runner) workLoop(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.results)
	for j := range r.jobs {
		r.results <- r.runJob(ctx, j)
	}
}

// runJob walks the matched tickets in chunks, retrying transient failures
// per ticket and feeding final outcomes into the circuit breaker. Exactly
// one execution record is written per ticket regardless of retries.
func (r *Runner) runJob(ctx context.Context, j job) jobResult {
	result := jobResult{tenant: j.tenant, rule: j.rule, matched: len(j.tickets)}
	defer func() { result.duration = time.Since(j.startedAt) }()

	store, err := r.deps.Stores.TenantStore(ctx, j.tenant)
	if err != nil {
		result.failed = result.matched
		result.errors = append(result.errors, fmt.Sprintf("tenant store: %v", err))
		return result
	}

	policy := RetryPolicy{MaxAttempts: r.cfg.MaxAttempts, Backoff: r.cfg.Backoff}
	breaker := NewCircuitBreaker(r.cfg.BreakerThreshold)

	chunkSize := r.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}

	for chunkStart := 0; chunkStart < len(j.tickets); chunkStart += chunkSize {
		if chunkStart > 0 && r.cfg.ChunkPacing > 0 {
			select {
			case <-ctx.Done():
				result.aborted = true
				result.errors = appendError(result.errors, ctx.Err().Error())
				return result
			case <-time.After(r.cfg.ChunkPacing):
			}
		}

		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(j.tickets) {
			chunkEnd = len(j.tickets)
		}
		for _, ticket := range j.tickets[chunkStart:chunkEnd] {
			if breaker.Open() {
				result.aborted = true
				result.errors = appendError(result.errors,
					fmt.Sprintf("aborted after %d consecutive transient failures", breaker.Consecutive()))
				return result
			}

			err := policy.Do(ctx, func() error {
				return r.deps.Rules.AttemptRuleOnTicket(ctx, store, j.rule, ticket.ID)
			})
			if err == nil {
				r.deps.Rules.RecordExecution(ctx, store, j.rule, ticket.ID, domain.RuleResultSuccess, "")
				result.succeeded++
				breaker.RecordSuccess()
				continue
			}
			r.deps.Rules.RecordExecution(ctx, store, j.rule, ticket.ID, domain.RuleResultFailure, err.Error())
			result.failed++
			result.errors = appendError(result.errors, fmt.Sprintf("ticket %d: %v", ticket.ID, err))
			breaker.RecordFailure(err)
		}
	}
	return result
}

func (r *Runner) completionLoop(ctx context.Context) {
	defer r.wg.Done()
	for result := range r.results {
		if err := r.writeCompletion(ctx, result); err != nil {
			r.deps.Logger.Error("write batch completion notice",
				zap.Int64("rule_id", result.rule.ID),
				zap.Error(err))
		}
	}
}

// writeCompletion emits the RULE_EXECUTION_COMPLETE notice for a finished
// batch and announces the completion on the dispatcher.
func (r *Runner) writeCompletion(ctx context.Context, result jobResult) error {
	severity := domain.SeverityInfo
	if result.failed > 0 || result.aborted {
		severity = domain.SeverityWarning
	}

	store, err := r.deps.Stores.TenantStore(ctx, result.tenant)
	if err != nil {
		return err
	}

	notification := &domain.Notification{
		TenantID: result.tenant.ID,
		Type:     domain.NotificationRuleRunComplete,
		Severity: severity,
		Message: fmt.Sprintf("Rule %q finished: %d matched, %d succeeded, %d failed",
			result.rule.Name, result.matched, result.succeeded, result.failed),
		Payload: map[string]any{
			"rule_id":     result.rule.ID,
			"rule_name":   result.rule.Name,
			"matched":     result.matched,
			"succeeded":   result.succeeded,
			"failed":      result.failed,
			"aborted":     result.aborted,
			"duration_ms": result.duration.Milliseconds(),
			"errors":      result.errors,
		},
	}
	if err := r.deps.Notifier.Write(ctx, store.Notifications, notification); err != nil {
		return err
	}

	if r.deps.Dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventRuleBatchCompleted,
			TenantID:  result.tenant.ID,
			Timestamp: time.Now(),
			Payload: events.RuleBatchCompletedPayload{
				RuleID:    result.rule.ID,
				RuleName:  result.rule.Name,
				Matched:   result.matched,
				Succeeded: result.succeeded,
				Failed:    result.failed,
				Aborted:   result.aborted,
				Duration:  result.duration,
			},
		}
		if err := r.deps.Dispatcher.Publish(ctx, event); err != nil {
			r.deps.Logger.Warn("publish batch completion event", zap.Error(err))
		}
	}
	return nil
}

func appendError(list []string, msg string) []string {
	if len(list) >= maxReportedErrors {
		return list
	}
	return append(list, msg)
}
