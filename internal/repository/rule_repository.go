package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// RuleRepository reads tenant processing rules and appends execution
// records. Rules themselves are created by tenant admins outside this
// engine; only the trigger counters are written here.
type RuleRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.ProcessingRule, error)
	ListEnabled(ctx context.Context) ([]domain.ProcessingRule, error)

	// RecordTriggered increments times_triggered and stamps
	// last_triggered_at. Called only on successful executions.
	RecordTriggered(ctx context.Context, id int64, at time.Time) error

	CreateExecution(ctx context.Context, execution *domain.RuleExecution) error
	ListExecutions(ctx context.Context, ruleID int64, limit int) ([]domain.RuleExecution, error)
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates the repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

const ruleColumns = `
        id, tenant_id, name, enabled, target, search_text, case_sensitive,
        action_kind, action_params, times_triggered, last_triggered_at, created_at, updated_at`

func scanRule(row pgx.Row) (*domain.ProcessingRule, error) {
	var rule domain.ProcessingRule
	var kind domain.ActionKind
	var params []byte
	if err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&rule.Enabled,
		&rule.Target,
		&rule.SearchText,
		&rule.CaseSensitive,
		&kind,
		&params,
		&rule.TimesTriggered,
		&rule.LastTriggeredAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	action, err := domain.DecodeRuleAction(kind, params)
	if err != nil {
		return nil, err
	}
	rule.Action = action
	return &rule, nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id int64) (*domain.ProcessingRule, error) {
	query := `SELECT` + ruleColumns + ` FROM processing_rules WHERE id=$1`
	return scanRule(r.pool.QueryRow(ctx, query, id))
}

func (r *ruleRepository) ListEnabled(ctx context.Context) ([]domain.ProcessingRule, error) {
	query := `SELECT` + ruleColumns + ` FROM processing_rules WHERE enabled=TRUE ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ProcessingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *ruleRepository) RecordTriggered(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE processing_rules SET times_triggered=times_triggered+1, last_triggered_at=$1, updated_at=NOW() WHERE id=$2`,
		at, id)
	return err
}

func (r *ruleRepository) CreateExecution(ctx context.Context, execution *domain.RuleExecution) error {
	const query = `
        INSERT INTO rule_executions (id, tenant_id, rule_id, ticket_id, action, result, error_message)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		execution.ID,
		execution.TenantID,
		execution.RuleID,
		execution.TicketID,
		execution.Action,
		execution.Result,
		execution.ErrorMessage,
	).Scan(&execution.CreatedAt)
}

func (r *ruleRepository) ListExecutions(ctx context.Context, ruleID int64, limit int) ([]domain.RuleExecution, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, tenant_id, rule_id, ticket_id, action, result, error_message, created_at
        FROM rule_executions WHERE rule_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RuleExecution
	for rows.Next() {
		var e domain.RuleExecution
		if err := rows.Scan(&e.ID, &e.TenantID, &e.RuleID, &e.TicketID, &e.Action, &e.Result, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
