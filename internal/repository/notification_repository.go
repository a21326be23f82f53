package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// NotificationRepository persists the write-once notification rows that
// downstream channel connectors consume.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListRecent(ctx context.Context, limit int) ([]domain.Notification, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository instantiates the repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, tenant_id, ticket_id, type, severity, message, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		notification.ID,
		notification.TenantID,
		notification.TicketID,
		notification.Type,
		notification.Severity,
		notification.Message,
		notification.Payload,
	).Scan(&notification.CreatedAt)
}

func (r *notificationRepository) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, tenant_id, ticket_id, type, severity, message, payload, created_at
        FROM notifications ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.TicketID, &n.Type, &n.Severity, &n.Message, &n.Payload, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
