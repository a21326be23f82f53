package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// PoolStatus is the ownership-workflow state of a ticket. WaitingCustomer
// pauses resolve-phase SLA evaluation even when sla_paused_at is null.
type PoolStatus string

const (
	PoolStatusNone            PoolStatus = ""
	PoolStatusAssigned        PoolStatus = "ASSIGNED"
	PoolStatusWaitingCustomer PoolStatus = "WAITING_CUSTOMER"
)

// SLAPhase distinguishes the two SLA clocks on a ticket.
type SLAPhase string

const (
	PhaseResponse SLAPhase = "response"
	PhaseResolve  SLAPhase = "resolve"
)

// NotificationMarkers carries the six write-once idempotency timestamps.
// A set marker means that phase/threshold combination has already fired
// for the ticket's current SLA lifecycle.
type NotificationMarkers struct {
	ResponseNearAt   *time.Time
	ResponseBreachAt *time.Time
	ResponsePastAt   *time.Time
	ResolveNearAt    *time.Time
	ResolveBreachAt  *time.Time
	ResolvePastAt    *time.Time
}

// Get returns the marker for the given SLA notification type, or nil for
// non-SLA types.
func (m *NotificationMarkers) Get(t NotificationType) *time.Time {
	switch t {
	case NotificationResponseNear:
		return m.ResponseNearAt
	case NotificationResponseBreach:
		return m.ResponseBreachAt
	case NotificationResponsePast:
		return m.ResponsePastAt
	case NotificationResolveNear:
		return m.ResolveNearAt
	case NotificationResolveBreach:
		return m.ResolveBreachAt
	case NotificationResolvePast:
		return m.ResolvePastAt
	}
	return nil
}

// Set stamps the marker for the given SLA notification type.
func (m *NotificationMarkers) Set(t NotificationType, at time.Time) {
	switch t {
	case NotificationResponseNear:
		m.ResponseNearAt = &at
	case NotificationResponseBreach:
		m.ResponseBreachAt = &at
	case NotificationResponsePast:
		m.ResponsePastAt = &at
	case NotificationResolveNear:
		m.ResolveNearAt = &at
	case NotificationResolveBreach:
		m.ResolveBreachAt = &at
	case NotificationResolvePast:
		m.ResolvePastAt = &at
	}
}

// Ticket is the SLA-relevant projection of a ticket row. The full ticket
// aggregate (messages, attachments, billing) lives outside this engine.
type Ticket struct {
	ID         int64
	TenantID   string
	Title      string
	Body       string
	Status     TicketStatus
	Priority   TicketPriority
	PoolStatus PoolStatus
	AssigneeID *string
	CustomerID *string
	CompanyID  *string
	AssetID    *int64
	Tags       []string

	SLADefinitionID *int64
	SLASource       SLASource
	SLAAppliedAt    *time.Time

	ResponseDueAt      *time.Time
	ResolveDueAt       *time.Time
	FirstRespondedAt   *time.Time
	OwnershipStartedAt *time.Time
	ResolvedAt         *time.Time

	SLAPausedAt          *time.Time
	SLAPauseTotalSeconds int64

	Markers NotificationMarkers

	MonitoringSource bool
	MonitoringMeta   map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Paused reports whether resolve-phase evaluation is suspended for the
// ticket. Response-phase evaluation is never paused.
func (t *Ticket) Paused() bool {
	return t.PoolStatus == PoolStatusWaitingCustomer || t.SLAPausedAt != nil
}

// Responded reports whether the response phase has completed.
func (t *Ticket) Responded() bool {
	return t.FirstRespondedAt != nil
}

// ResolutionClockStart returns the resolve-phase clock start: ownership
// takes precedence over first response. Nil when neither is set.
func (t *Ticket) ResolutionClockStart() *time.Time {
	if t.OwnershipStartedAt != nil {
		return t.OwnershipStartedAt
	}
	return t.FirstRespondedAt
}
