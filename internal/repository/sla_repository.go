package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// SLARepository reads SLA definitions, business-hours profiles and the
// customer/asset SLA mappings the resolver walks.
type SLARepository interface {
	GetDefinition(ctx context.Context, id int64) (*domain.SLADefinition, error)

	// LowestActiveDefinition returns the tenant's default SLA: the active
	// definition with the lowest id, or nil when none exists.
	LowestActiveDefinition(ctx context.Context) (*domain.SLADefinition, error)

	GetProfile(ctx context.Context, id int64) (*domain.BusinessHoursProfile, error)

	// CompanySLAID returns the SLA configured on a customer company, nil
	// when the company has none.
	CompanySLAID(ctx context.Context, companyID string) (*int64, error)

	// AssetSLAID returns the SLA configured on a configuration item, nil
	// when the asset has none.
	AssetSLAID(ctx context.Context, assetID int64) (*int64, error)
}

type slaRepository struct {
	pool *pgxpool.Pool
}

// NewSLARepository instantiates the repository.
func NewSLARepository(pool *pgxpool.Pool) SLARepository {
	return &slaRepository{pool: pool}
}

const definitionColumns = `
        id, tenant_id, name, near_breach_percent, past_breach_percent,
        business_hours_id, is_active, created_at, updated_at`

func (r *slaRepository) GetDefinition(ctx context.Context, id int64) (*domain.SLADefinition, error) {
	query := `SELECT` + definitionColumns + ` FROM sla_definitions WHERE id=$1`
	return r.scanDefinition(ctx, query, id)
}

func (r *slaRepository) LowestActiveDefinition(ctx context.Context) (*domain.SLADefinition, error) {
	query := `SELECT` + definitionColumns + ` FROM sla_definitions WHERE is_active=TRUE ORDER BY id ASC LIMIT 1`
	return r.scanDefinition(ctx, query)
}

func (r *slaRepository) scanDefinition(ctx context.Context, query string, args ...any) (*domain.SLADefinition, error) {
	var def domain.SLADefinition
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&def.ID,
		&def.TenantID,
		&def.Name,
		&def.NearBreachPercent,
		&def.PastBreachPercent,
		&def.BusinessHoursID,
		&def.IsActive,
		&def.CreatedAt,
		&def.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *slaRepository) GetProfile(ctx context.Context, id int64) (*domain.BusinessHoursProfile, error) {
	const query = `
        SELECT id, tenant_id, name, timezone, weekdays, start_minute, end_minute, is_24x7
        FROM business_hours_profiles WHERE id=$1`
	var profile domain.BusinessHoursProfile
	var weekdays []int32
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.TenantID,
		&profile.Name,
		&profile.Timezone,
		&weekdays,
		&profile.StartMinute,
		&profile.EndMinute,
		&profile.Is24x7,
	); err != nil {
		return nil, err
	}
	for _, day := range weekdays {
		profile.Weekdays = append(profile.Weekdays, time.Weekday(day))
	}
	return &profile, nil
}

func (r *slaRepository) CompanySLAID(ctx context.Context, companyID string) (*int64, error) {
	var slaID *int64
	err := r.pool.QueryRow(ctx,
		`SELECT sla_definition_id FROM companies WHERE id=$1`, companyID).Scan(&slaID)
	if err != nil {
		return nil, err
	}
	return slaID, nil
}

func (r *slaRepository) AssetSLAID(ctx context.Context, assetID int64) (*int64, error) {
	var slaID *int64
	err := r.pool.QueryRow(ctx,
		`SELECT sla_definition_id FROM assets WHERE id=$1`, assetID).Scan(&slaID)
	if err != nil {
		return nil, err
	}
	return slaID, nil
}
