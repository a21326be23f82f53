package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketWithSLA is the scheduler's read unit: a ticket joined with its SLA
// definition and business-hours profile in one query.
type TicketWithSLA struct {
	Ticket     domain.Ticket
	Definition *domain.SLADefinition
	Profile    *domain.BusinessHoursProfile
}

// TicketRepository encapsulates the SLA-relevant ticket projection plus
// the targeted mutations the rule executor needs.
type TicketRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	Create(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id int64) error

	// ListOpenWithSLA returns up to limit open tickets that carry an SLA,
	// ordered by id ascending, joined with their definition and profile.
	ListOpenWithSLA(ctx context.Context, limit int) ([]TicketWithSLA, error)

	// SearchByText returns the most recent tickets whose title/body
	// contains the given substring, newest first.
	SearchByText(ctx context.Context, target domain.RuleTarget, text string, caseSensitive bool, limit int) ([]domain.Ticket, error)

	// SetNotifiedMarker stamps one notified_*_at column. The update is a
	// no-op when the marker is already set.
	SetNotifiedMarker(ctx context.Context, id int64, notificationType domain.NotificationType, at time.Time) error

	SetAssignee(ctx context.Context, id int64, assigneeID string, status domain.TicketStatus) error
	SetPriority(ctx context.Context, id int64, priority domain.TicketPriority) error
	SetStatus(ctx context.Context, id int64, status domain.TicketStatus) error
	SetTags(ctx context.Context, id int64, tags []string) error
	SetMonitoring(ctx context.Context, id int64, meta map[string]any) error
	SetSLADeadlines(ctx context.Context, id int64, responseDue, resolveDue *time.Time) error
	SetSLAAssignment(ctx context.Context, id int64, slaID *int64, source domain.SLASource, appliedAt time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        id, tenant_id, title, body, status, priority, pool_status,
        assignee_id, customer_id, company_id, asset_id, tags,
        sla_definition_id, sla_source, sla_applied_at,
        response_due_at, resolve_due_at, first_responded_at, ownership_started_at, resolved_at,
        sla_paused_at, sla_pause_total_seconds,
        notified_response_near_at, notified_response_breach_at, notified_response_past_at,
        notified_resolve_near_at, notified_resolve_breach_at, notified_resolve_past_at,
        monitoring_source, monitoring_meta, created_at, updated_at`

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.Title,
		&ticket.Body,
		&ticket.Status,
		&ticket.Priority,
		&ticket.PoolStatus,
		&ticket.AssigneeID,
		&ticket.CustomerID,
		&ticket.CompanyID,
		&ticket.AssetID,
		&ticket.Tags,
		&ticket.SLADefinitionID,
		&ticket.SLASource,
		&ticket.SLAAppliedAt,
		&ticket.ResponseDueAt,
		&ticket.ResolveDueAt,
		&ticket.FirstRespondedAt,
		&ticket.OwnershipStartedAt,
		&ticket.ResolvedAt,
		&ticket.SLAPausedAt,
		&ticket.SLAPauseTotalSeconds,
		&ticket.Markers.ResponseNearAt,
		&ticket.Markers.ResponseBreachAt,
		&ticket.Markers.ResponsePastAt,
		&ticket.Markers.ResolveNearAt,
		&ticket.Markers.ResolveBreachAt,
		&ticket.Markers.ResolvePastAt,
		&ticket.MonitoringSource,
		&ticket.MonitoringMeta,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, title, body, status, priority, pool_status,
            assignee_id, customer_id, company_id, asset_id, tags,
            sla_definition_id, sla_source, sla_applied_at, response_due_at, resolve_due_at, monitoring_source, monitoring_meta)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.Title,
		ticket.Body,
		ticket.Status,
		ticket.Priority,
		ticket.PoolStatus,
		ticket.AssigneeID,
		ticket.CustomerID,
		ticket.CompanyID,
		ticket.AssetID,
		ticket.Tags,
		ticket.SLADefinitionID,
		ticket.SLASource,
		ticket.SLAAppliedAt,
		ticket.ResponseDueAt,
		ticket.ResolveDueAt,
		ticket.MonitoringSource,
		ticket.MonitoringMeta,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListOpenWithSLA(ctx context.Context, limit int) ([]TicketWithSLA, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `
        SELECT t.id, t.tenant_id, t.title, t.body, t.status, t.priority, t.pool_status,
               t.assignee_id, t.customer_id, t.company_id, t.asset_id, t.tags,
               t.sla_definition_id, t.sla_source, t.sla_applied_at,
               t.response_due_at, t.resolve_due_at, t.first_responded_at, t.ownership_started_at, t.resolved_at,
               t.sla_paused_at, t.sla_pause_total_seconds,
               t.notified_response_near_at, t.notified_response_breach_at, t.notified_response_past_at,
               t.notified_resolve_near_at, t.notified_resolve_breach_at, t.notified_resolve_past_at,
               t.monitoring_source, t.monitoring_meta, t.created_at, t.updated_at,
               d.id, d.tenant_id, d.name, d.near_breach_percent, d.past_breach_percent,
               d.business_hours_id, d.is_active, d.created_at, d.updated_at,
               p.id, p.tenant_id, p.name, p.timezone, p.weekdays, p.start_minute, p.end_minute, p.is_24x7
        FROM tickets t
        JOIN sla_definitions d ON d.id = t.sla_definition_id
        LEFT JOIN business_hours_profiles p ON p.id = d.business_hours_id
        WHERE t.status IN ('OPEN','IN_PROGRESS') AND t.sla_definition_id IS NOT NULL
        ORDER BY t.id ASC
        LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TicketWithSLA
	for rows.Next() {
		var item TicketWithSLA
		var def domain.SLADefinition
		var (
			profileID       *int64
			profileTenant   *string
			profileName     *string
			profileTimezone *string
			profileWeekdays []int32
			profileStart    *int
			profileEnd      *int
			profile24x7     *bool
		)
		if err := rows.Scan(
			&item.Ticket.ID,
			&item.Ticket.TenantID,
			&item.Ticket.Title,
			&item.Ticket.Body,
			&item.Ticket.Status,
			&item.Ticket.Priority,
			&item.Ticket.PoolStatus,
			&item.Ticket.AssigneeID,
			&item.Ticket.CustomerID,
			&item.Ticket.CompanyID,
			&item.Ticket.AssetID,
			&item.Ticket.Tags,
			&item.Ticket.SLADefinitionID,
			&item.Ticket.SLASource,
			&item.Ticket.SLAAppliedAt,
			&item.Ticket.ResponseDueAt,
			&item.Ticket.ResolveDueAt,
			&item.Ticket.FirstRespondedAt,
			&item.Ticket.OwnershipStartedAt,
			&item.Ticket.ResolvedAt,
			&item.Ticket.SLAPausedAt,
			&item.Ticket.SLAPauseTotalSeconds,
			&item.Ticket.Markers.ResponseNearAt,
			&item.Ticket.Markers.ResponseBreachAt,
			&item.Ticket.Markers.ResponsePastAt,
			&item.Ticket.Markers.ResolveNearAt,
			&item.Ticket.Markers.ResolveBreachAt,
			&item.Ticket.Markers.ResolvePastAt,
			&item.Ticket.MonitoringSource,
			&item.Ticket.MonitoringMeta,
			&item.Ticket.CreatedAt,
			&item.Ticket.UpdatedAt,
			&def.ID,
			&def.TenantID,
			&def.Name,
			&def.NearBreachPercent,
			&def.PastBreachPercent,
			&def.BusinessHoursID,
			&def.IsActive,
			&def.CreatedAt,
			&def.UpdatedAt,
			&profileID,
			&profileTenant,
			&profileName,
			&profileTimezone,
			&profileWeekdays,
			&profileStart,
			&profileEnd,
			&profile24x7,
		); err != nil {
			return nil, err
		}
		item.Definition = &def
		if profileID != nil {
			profile := &domain.BusinessHoursProfile{
				ID:          *profileID,
				StartMinute: *profileStart,
				EndMinute:   *profileEnd,
				Is24x7:      *profile24x7,
			}
			if profileTenant != nil {
				profile.TenantID = *profileTenant
			}
			if profileName != nil {
				profile.Name = *profileName
			}
			if profileTimezone != nil {
				profile.Timezone = *profileTimezone
			}
			for _, day := range profileWeekdays {
				profile.Weekdays = append(profile.Weekdays, time.Weekday(day))
			}
			item.Profile = profile
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *ticketRepository) SearchByText(ctx context.Context, target domain.RuleTarget, text string, caseSensitive bool, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 1000
	}
	op := "ILIKE"
	if caseSensitive {
		op = "LIKE"
	}
	var clause string
	switch target {
	case domain.RuleTargetTitle:
		clause = fmt.Sprintf("title %s $1", op)
	case domain.RuleTargetBody:
		clause = fmt.Sprintf("body %s $1", op)
	default:
		clause = fmt.Sprintf("(title %s $1 OR body %s $1)", op, op)
	}
	query := fmt.Sprintf(`SELECT%s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d`,
		ticketColumns, clause, limit)

	rows, err := r.pool.Query(ctx, query, "%"+text+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

var markerColumns = map[domain.NotificationType]string{
	domain.NotificationResponseNear:   "notified_response_near_at",
	domain.NotificationResponseBreach: "notified_response_breach_at",
	domain.NotificationResponsePast:   "notified_response_past_at",
	domain.NotificationResolveNear:    "notified_resolve_near_at",
	domain.NotificationResolveBreach:  "notified_resolve_breach_at",
	domain.NotificationResolvePast:    "notified_resolve_past_at",
}

func (r *ticketRepository) SetNotifiedMarker(ctx context.Context, id int64, notificationType domain.NotificationType, at time.Time) error {
	column, ok := markerColumns[notificationType]
	if !ok {
		return fmt.Errorf("no marker column for notification type %q", notificationType)
	}
	// The IS NULL guard keeps the marker write-once even if two evaluations
	// ever race.
	query := fmt.Sprintf(`UPDATE tickets SET %s=$1, updated_at=NOW() WHERE id=$2 AND %s IS NULL`, column, column)
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}

func (r *ticketRepository) SetAssignee(ctx context.Context, id int64, assigneeID string, status domain.TicketStatus) error {
	return r.exec(ctx, `UPDATE tickets SET assignee_id=$1, status=$2, pool_status=$3, updated_at=NOW() WHERE id=$4`,
		assigneeID, status, domain.PoolStatusAssigned, id)
}

func (r *ticketRepository) SetPriority(ctx context.Context, id int64, priority domain.TicketPriority) error {
	return r.exec(ctx, `UPDATE tickets SET priority=$1, updated_at=NOW() WHERE id=$2`, priority, id)
}

func (r *ticketRepository) SetStatus(ctx context.Context, id int64, status domain.TicketStatus) error {
	return r.exec(ctx, `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
}

func (r *ticketRepository) SetTags(ctx context.Context, id int64, tags []string) error {
	return r.exec(ctx, `UPDATE tickets SET tags=$1, updated_at=NOW() WHERE id=$2`, tags, id)
}

func (r *ticketRepository) SetMonitoring(ctx context.Context, id int64, meta map[string]any) error {
	return r.exec(ctx, `UPDATE tickets SET monitoring_source=TRUE, monitoring_meta=$1, updated_at=NOW() WHERE id=$2`, meta, id)
}

func (r *ticketRepository) SetSLADeadlines(ctx context.Context, id int64, responseDue, resolveDue *time.Time) error {
	return r.exec(ctx, `UPDATE tickets SET response_due_at=COALESCE($1, response_due_at), resolve_due_at=COALESCE($2, resolve_due_at), updated_at=NOW() WHERE id=$3`,
		responseDue, resolveDue, id)
}

func (r *ticketRepository) SetSLAAssignment(ctx context.Context, id int64, slaID *int64, source domain.SLASource, appliedAt time.Time) error {
	return r.exec(ctx, `UPDATE tickets SET sla_definition_id=$1, sla_source=$2, sla_applied_at=$3, updated_at=NOW() WHERE id=$4`,
		slaID, source, appliedAt, id)
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
