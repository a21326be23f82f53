package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the per-tenant repositories backed by one tenant's
// connection pool.
type Store struct {
	Tickets       TicketRepository
	SLAs          SLARepository
	Notifications NotificationRepository
	Rules         RuleRepository
	Activities    ActivityRepository
}

// NewStore builds the repository bundle for a tenant pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tickets:       NewTicketRepository(pool),
		SLAs:          NewSLARepository(pool),
		Notifications: NewNotificationRepository(pool),
		Rules:         NewRuleRepository(pool),
		Activities:    NewActivityRepository(pool),
	}
}
