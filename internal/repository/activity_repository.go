package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// ActivityRepository appends audit activity entries. Write-only from the
// engine's perspective.
type ActivityRepository interface {
	Create(ctx context.Context, activity *domain.Activity) error
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository instantiates the repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	const query = `
        INSERT INTO activities (id, tenant_id, ticket_id, kind, message, detail)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		activity.ID,
		activity.TenantID,
		activity.TicketID,
		activity.Kind,
		activity.Message,
		activity.Detail,
	).Scan(&activity.CreatedAt)
}
