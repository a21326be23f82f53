package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// SLAHandler exposes per-ticket SLA operations: resolving an assignment
// and inspecting the current percent-elapsed state.
type SLAHandler struct {
	tenants  repository.TenantRepository
	stores   StoreProvider
	resolver *service.Resolver
	percent  *service.PercentCalculator
}

// NewSLAHandler constructs handler.
func NewSLAHandler(tenants repository.TenantRepository, stores StoreProvider, resolver *service.Resolver, percent *service.PercentCalculator) *SLAHandler {
	return &SLAHandler{tenants: tenants, stores: stores, resolver: resolver, percent: percent}
}

// ResolveSLA POST /ops/tenants/:tenantID/tickets/:ticketID/sla/resolve
// runs the precedence walk for the ticket and persists the outcome.
func (h *SLAHandler) ResolveSLA(c *fiber.Ctx) error {
	store, ticket, err := h.ticket(c)
	if err != nil {
		return err
	}

	res, err := h.resolver.AssignTicketSLA(c.UserContext(), store, ticket)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ResolutionResponse{
		TicketID:        ticket.ID,
		SLADefinitionID: res.SLAID,
		Source:          res.Source,
	}})
}

// SLAStatus GET /ops/tenants/:tenantID/tickets/:ticketID/sla reports the
// ticket's current percent-elapsed per phase.
func (h *SLAHandler) SLAStatus(c *fiber.Ctx) error {
	store, ticket, err := h.ticket(c)
	if err != nil {
		return err
	}

	status := dto.TicketSLAStatusResponse{
		TicketID:        ticket.ID,
		SLADefinitionID: ticket.SLADefinitionID,
		Source:          ticket.SLASource,
		Paused:          ticket.Paused(),
		ResponseDueAt:   ticket.ResponseDueAt,
		ResolveDueAt:    ticket.ResolveDueAt,
	}

	if ticket.SLADefinitionID != nil {
		def, err := store.SLAs.GetDefinition(c.UserContext(), *ticket.SLADefinitionID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		var profile *domain.BusinessHoursProfile
		if def != nil && def.BusinessHoursID != nil {
			profile, err = store.SLAs.GetProfile(c.UserContext(), *def.BusinessHoursID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
		}
		if def != nil {
			status.SLAName = def.Name
		}
		if !ticket.Responded() {
			p := h.percent.ResponsePercent(ticket, profile)
			status.ResponsePercent = &p
		}
		if ticket.ResolvedAt == nil && !ticket.Paused() {
			p := h.percent.ResolvePercent(ticket, profile)
			status.ResolvePercent = &p
		}
	}
	return c.JSON(fiber.Map{"data": status})
}

func (h *SLAHandler) ticket(c *fiber.Ctx) (*repository.Store, *domain.Ticket, error) {
	tenantID := c.Params("tenantID")
	if tenantID == "" {
		return nil, nil, apperrors.NewValidationError("tenant id required", nil)
	}
	tenant, err := h.tenants.GetByID(c.UserContext(), tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("tenant", fiber.Map{"tenant_id": tenantID})
		}
		return nil, nil, err
	}
	if !tenant.IsActive {
		return nil, nil, apperrors.NewNotFound("tenant", fiber.Map{"tenant_id": tenantID})
	}

	ticketID, err := paramInt64(c, "ticketID")
	if err != nil {
		return nil, nil, err
	}
	store, err := h.stores.TenantStore(c.UserContext(), *tenant)
	if err != nil {
		return nil, nil, err
	}
	ticket, err := store.Tickets.GetByID(c.UserContext(), ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("ticket", fiber.Map{"ticket_id": ticketID})
		}
		return nil, nil, err
	}
	return store, ticket, nil
}
