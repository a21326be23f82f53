package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// MemStore is an in-memory stand-in for one tenant's data store. All
// repository fakes share the same mutex and maps so cross-repository
// effects (markers surviving into the next listing, executions written by
// the rule service) behave like the real store.
type MemStore struct {
	mu sync.Mutex

	Tickets       map[int64]*domain.Ticket
	Definitions   map[int64]*domain.SLADefinition
	Profiles      map[int64]*domain.BusinessHoursProfile
	CompanySLAs   map[string]*int64
	AssetSLAs     map[int64]*int64
	Rules         map[int64]*domain.ProcessingRule
	Executions    []domain.RuleExecution
	Notifications []domain.Notification
	Activities    []domain.Activity

	nextTicketID int64

	// FailTicketGet, when set, overrides GetByID for error injection.
	FailTicketGet func(id int64) error
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		Tickets:     make(map[int64]*domain.Ticket),
		Definitions: make(map[int64]*domain.SLADefinition),
		Profiles:    make(map[int64]*domain.BusinessHoursProfile),
		CompanySLAs: make(map[string]*int64),
		AssetSLAs:   make(map[int64]*int64),
		Rules:       make(map[int64]*domain.ProcessingRule),
	}
}

// Store returns the repository bundle view over this store.
func (m *MemStore) Store() *repository.Store {
	return &repository.Store{
		Tickets:       &memTickets{m},
		SLAs:          &memSLAs{m},
		Notifications: &memNotifications{m},
		Rules:         &memRules{m},
		Activities:    &memActivities{m},
	}
}

// AddTicket inserts a ticket, assigning an id when unset.
func (m *MemStore) AddTicket(ticket *domain.Ticket) *domain.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ticket.ID == 0 {
		m.nextTicketID++
		ticket.ID = m.nextTicketID
	} else if ticket.ID > m.nextTicketID {
		m.nextTicketID = ticket.ID
	}
	m.Tickets[ticket.ID] = ticket
	return ticket
}

// NotificationsOfType returns the stored notifications matching the type.
func (m *MemStore) NotificationsOfType(t domain.NotificationType) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.Notifications {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func cloneTicket(t *domain.Ticket) domain.Ticket {
	copied := *t
	copied.Tags = append([]string(nil), t.Tags...)
	return copied
}

type memTickets struct{ s *MemStore }

func (r *memTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	if r.s.FailTicketGet != nil {
		if err := r.s.FailTicketGet(id); err != nil {
			return nil, err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.Tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := cloneTicket(ticket)
	return &copied, nil
}

func (r *memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextTicketID++
	ticket.ID = r.s.nextTicketID
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := cloneTicket(ticket)
	r.s.Tickets[ticket.ID] = &copied
	return nil
}

func (r *memTickets) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.Tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.Tickets, id)
	return nil
}

func (r *memTickets) ListOpenWithSLA(_ context.Context, limit int) ([]repository.TicketWithSLA, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := make([]int64, 0, len(r.s.Tickets))
	for id, t := range r.s.Tickets {
		if t.SLADefinitionID == nil {
			continue
		}
		if t.Status != domain.TicketStatusOpen && t.Status != domain.TicketStatusInProgress {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]repository.TicketWithSLA, 0, len(ids))
	for _, id := range ids {
		ticket := r.s.Tickets[id]
		item := repository.TicketWithSLA{Ticket: cloneTicket(ticket)}
		if def, ok := r.s.Definitions[*ticket.SLADefinitionID]; ok {
			defCopy := *def
			item.Definition = &defCopy
			if def.BusinessHoursID != nil {
				if profile, ok := r.s.Profiles[*def.BusinessHoursID]; ok {
					profileCopy := *profile
					item.Profile = &profileCopy
				}
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func (r *memTickets) SearchByText(_ context.Context, target domain.RuleTarget, text string, caseSensitive bool, limit int) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	needle := text
	if !caseSensitive {
		needle = strings.ToLower(text)
	}
	matches := func(s string) bool {
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		return strings.Contains(s, needle)
	}

	var result []domain.Ticket
	for _, t := range r.s.Tickets {
		var hit bool
		switch target {
		case domain.RuleTargetTitle:
			hit = matches(t.Title)
		case domain.RuleTargetBody:
			hit = matches(t.Body)
		default:
			hit = matches(t.Title) || matches(t.Body)
		}
		if hit {
			result = append(result, cloneTicket(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memTickets) SetNotifiedMarker(_ context.Context, id int64, notificationType domain.NotificationType, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.Tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if ticket.Markers.Get(notificationType) != nil {
		return nil
	}
	ticket.Markers.Set(notificationType, at)
	return nil
}

func (r *memTickets) SetAssignee(_ context.Context, id int64, assigneeID string, status domain.TicketStatus) error {
	return r.update(id, func(t *domain.Ticket) {
		t.AssigneeID = &assigneeID
		t.Status = status
		t.PoolStatus = domain.PoolStatusAssigned
	})
}

func (r *memTickets) SetPriority(_ context.Context, id int64, priority domain.TicketPriority) error {
	return r.update(id, func(t *domain.Ticket) { t.Priority = priority })
}

func (r *memTickets) SetStatus(_ context.Context, id int64, status domain.TicketStatus) error {
	return r.update(id, func(t *domain.Ticket) { t.Status = status })
}

func (r *memTickets) SetTags(_ context.Context, id int64, tags []string) error {
	return r.update(id, func(t *domain.Ticket) { t.Tags = append([]string(nil), tags...) })
}

func (r *memTickets) SetMonitoring(_ context.Context, id int64, meta map[string]any) error {
	return r.update(id, func(t *domain.Ticket) {
		t.MonitoringSource = true
		t.MonitoringMeta = meta
	})
}

func (r *memTickets) SetSLADeadlines(_ context.Context, id int64, responseDue, resolveDue *time.Time) error {
	return r.update(id, func(t *domain.Ticket) {
		if responseDue != nil {
			t.ResponseDueAt = responseDue
		}
		if resolveDue != nil {
			t.ResolveDueAt = resolveDue
		}
	})
}

func (r *memTickets) SetSLAAssignment(_ context.Context, id int64, slaID *int64, source domain.SLASource, appliedAt time.Time) error {
	return r.update(id, func(t *domain.Ticket) {
		t.SLADefinitionID = slaID
		t.SLASource = source
		t.SLAAppliedAt = &appliedAt
	})
}

func (r *memTickets) update(id int64, fn func(*domain.Ticket)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.Tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(ticket)
	ticket.UpdatedAt = time.Now()
	return nil
}

type memSLAs struct{ s *MemStore }

func (r *memSLAs) GetDefinition(_ context.Context, id int64) (*domain.SLADefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	def, ok := r.s.Definitions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *def
	return &copied, nil
}

func (r *memSLAs) LowestActiveDefinition(_ context.Context) (*domain.SLADefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var lowest *domain.SLADefinition
	for _, def := range r.s.Definitions {
		if !def.IsActive {
			continue
		}
		if lowest == nil || def.ID < lowest.ID {
			lowest = def
		}
	}
	if lowest == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *lowest
	return &copied, nil
}

func (r *memSLAs) GetProfile(_ context.Context, id int64) (*domain.BusinessHoursProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	profile, ok := r.s.Profiles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *profile
	return &copied, nil
}

func (r *memSLAs) CompanySLAID(_ context.Context, companyID string) (*int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slaID, ok := r.s.CompanySLAs[companyID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return slaID, nil
}

func (r *memSLAs) AssetSLAID(_ context.Context, assetID int64) (*int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slaID, ok := r.s.AssetSLAs[assetID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return slaID, nil
}

type memNotifications struct{ s *MemStore }

func (r *memNotifications) Create(_ context.Context, notification *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	notification.CreatedAt = time.Now()
	r.s.Notifications = append(r.s.Notifications, *notification)
	return nil
}

func (r *memNotifications) ListRecent(_ context.Context, limit int) ([]domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := append([]domain.Notification(nil), r.s.Notifications...)
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type memRules struct{ s *MemStore }

func (r *memRules) GetByID(_ context.Context, id int64) (*domain.ProcessingRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.Rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *rule
	return &copied, nil
}

func (r *memRules) ListEnabled(_ context.Context) ([]domain.ProcessingRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.ProcessingRule
	for _, rule := range r.s.Rules {
		if rule.Enabled {
			result = append(result, *rule)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memRules) RecordTriggered(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.Rules[id]
	if !ok {
		return pgx.ErrNoRows
	}
	rule.TimesTriggered++
	rule.LastTriggeredAt = &at
	return nil
}

func (r *memRules) CreateExecution(_ context.Context, execution *domain.RuleExecution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	execution.CreatedAt = time.Now()
	r.s.Executions = append(r.s.Executions, *execution)
	return nil
}

func (r *memRules) ListExecutions(_ context.Context, ruleID int64, limit int) ([]domain.RuleExecution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.RuleExecution
	for _, e := range r.s.Executions {
		if e.RuleID == ruleID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type memActivities struct{ s *MemStore }

func (r *memActivities) Create(_ context.Context, activity *domain.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	activity.CreatedAt = time.Now()
	r.s.Activities = append(r.s.Activities, *activity)
	return nil
}

// MemProvider maps tenant ids to in-memory stores.
type MemProvider struct {
	Stores map[string]*MemStore

	// Err, when set, fails every TenantStore call.
	Err error
}

// NewMemProvider creates a provider over the given stores.
func NewMemProvider(stores map[string]*MemStore) *MemProvider {
	return &MemProvider{Stores: stores}
}

// TenantStore returns the tenant's repository bundle.
func (p *MemProvider) TenantStore(_ context.Context, tenant domain.Tenant) (*repository.Store, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	store, ok := p.Stores[tenant.ID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return store.Store(), nil
}

// MemTenants is an in-memory tenant registry.
type MemTenants struct {
	Tenants []domain.Tenant
}

// ListActive returns the active tenants.
func (m *MemTenants) ListActive(_ context.Context) ([]domain.Tenant, error) {
	var result []domain.Tenant
	for _, t := range m.Tenants {
		if t.IsActive {
			result = append(result, t)
		}
	}
	return result, nil
}

// GetByID returns a tenant by id.
func (m *MemTenants) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	for i := range m.Tenants {
		if m.Tenants[i].ID == id {
			tenant := m.Tenants[i]
			return &tenant, nil
		}
	}
	return nil, pgx.ErrNoRows
}
