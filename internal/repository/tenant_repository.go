package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TenantRepository reads the tenant registry on the control-plane pool.
// The scheduler re-reads it every cycle so kill-switch and interval edits
// take effect without a restart.
type TenantRepository interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}

type tenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository instantiates the repository.
func NewTenantRepository(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepository{pool: pool}
}

const tenantColumns = `
        id, name, store_dsn, sla_processing_enabled, sla_check_interval_seconds,
        is_active, created_at, updated_at`

func (r *tenantRepository) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE is_active=TRUE ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Tenant
	for rows.Next() {
		var tenant domain.Tenant
		if err := rows.Scan(
			&tenant.ID,
			&tenant.Name,
			&tenant.StoreDSN,
			&tenant.SLAProcessingEnabled,
			&tenant.SLACheckIntervalSeconds,
			&tenant.IsActive,
			&tenant.CreatedAt,
			&tenant.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, tenant)
	}
	return result, rows.Err()
}

func (r *tenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE id=$1`
	var tenant domain.Tenant
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.StoreDSN,
		&tenant.SLAProcessingEnabled,
		&tenant.SLACheckIntervalSeconds,
		&tenant.IsActive,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &tenant, nil
}
