package domain

import "time"

// Tenant is a registry row describing one isolated customer deployment.
// Each tenant's ticket data lives behind its own connection pool, reached
// via StoreDSN.
type Tenant struct {
	ID       string
	Name     string
	StoreDSN string

	// SLAProcessingEnabled is the per-tenant kill switch for the
	// notification scheduler.
	SLAProcessingEnabled bool

	// SLACheckIntervalSeconds controls how often the scheduler recomputes
	// this tenant's SLA state, independent of the global poll tick.
	SLACheckIntervalSeconds int

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Activity is an append-only audit entry for rule actions and SLA
// resolution events.
type Activity struct {
	ID        string
	TenantID  string
	TicketID  *int64
	Kind      string
	Message   string
	Detail    map[string]any
	CreatedAt time.Time
}
