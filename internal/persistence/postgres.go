package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// Postgres wraps access to a pgx connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool for the given DSN.
func NewPostgres(ctx context.Context, dsn string, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN not provided")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres")
	return &Postgres{Pool: pool}, nil
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return errors.New("postgres pool not configured")
	}
	return p.Pool.Ping(ctx)
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// PoolHandle returns the underlying pgx pool.
func (p *Postgres) PoolHandle() *pgxpool.Pool {
	if p == nil {
		return nil
	}
	return p.Pool
}

// TenantPools maintains one connection pool per tenant, dialed lazily from
// the DSN in the tenant registry. Pool-per-tenant keeps cross-tenant lock
// contention out of the storage layer.
type TenantPools struct {
	cfg    config.PostgresConfig
	logger *zap.Logger

	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	stores map[string]*repository.Store
}

// NewTenantPools creates the per-tenant pool manager.
func NewTenantPools(cfg config.PostgresConfig, logger *zap.Logger) *TenantPools {
	return &TenantPools{
		cfg:    cfg,
		logger: logger,
		pools:  make(map[string]*pgxpool.Pool),
		stores: make(map[string]*repository.Store),
	}
}

// TenantStore returns the repository bundle for a tenant, establishing the
// tenant's pool on first use.
func (tp *TenantPools) TenantStore(ctx context.Context, tenant domain.Tenant) (*repository.Store, error) {
	tp.mu.Lock()
	if store, ok := tp.stores[tenant.ID]; ok {
		tp.mu.Unlock()
		return store, nil
	}
	tp.mu.Unlock()

	tenantLogger := tp.logger.With(zap.String("tenant_id", tenant.ID))
	pg, err := NewPostgres(ctx, tenant.StoreDSN, tp.cfg, tenantLogger)
	if err != nil {
		return nil, err
	}

	if tp.cfg.RunMigrations {
		if err := RunMigrations(ctx, pg.Pool, "migrations/tenant", tenantLogger); err != nil {
			pg.Close()
			return nil, err
		}
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if store, ok := tp.stores[tenant.ID]; ok {
		// Lost the dial race; keep the earlier pool.
		pg.Close()
		return store, nil
	}
	tp.pools[tenant.ID] = pg.Pool
	tp.stores[tenant.ID] = repository.NewStore(pg.Pool)
	return tp.stores[tenant.ID], nil
}

// CloseAll releases every tenant pool.
func (tp *TenantPools) CloseAll() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for id, pool := range tp.pools {
		pool.Close()
		delete(tp.pools, id)
		delete(tp.stores, id)
	}
}
