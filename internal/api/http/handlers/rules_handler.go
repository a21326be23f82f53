package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/batch"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// StoreProvider hands out the repository bundle for a tenant's data store.
type StoreProvider interface {
	TenantStore(ctx context.Context, tenant domain.Tenant) (*repository.Store, error)
}

// RulesHandler exposes rule runs, execution history and recent
// notifications per tenant.
type RulesHandler struct {
	tenants repository.TenantRepository
	stores  StoreProvider
	rules   *service.RuleService
	runner  *batch.Runner
}

// NewRulesHandler constructs handler.
func NewRulesHandler(tenants repository.TenantRepository, stores StoreProvider, rules *service.RuleService, runner *batch.Runner) *RulesHandler {
	return &RulesHandler{tenants: tenants, stores: stores, rules: rules, runner: runner}
}

// ExecuteRule POST /ops/tenants/:tenantID/rules/:ruleID/execute/:ticketID
// applies the rule to a single ticket synchronously and returns the
// execution record.
func (h *RulesHandler) ExecuteRule(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	ruleID, err := paramInt64(c, "ruleID")
	if err != nil {
		return err
	}
	ticketID, err := paramInt64(c, "ticketID")
	if err != nil {
		return err
	}

	store, err := h.stores.TenantStore(c.UserContext(), *tenant)
	if err != nil {
		return err
	}
	rule, err := store.Rules.GetByID(c.UserContext(), ruleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("rule", fiber.Map{"rule_id": ruleID})
		}
		return err
	}

	execution := h.rules.ExecuteRuleOnTicket(c.UserContext(), store, rule, ticketID)
	return c.JSON(fiber.Map{"data": dto.RuleExecutionResponse{
		ID:           execution.ID,
		RuleID:       execution.RuleID,
		TicketID:     execution.TicketID,
		Action:       execution.Action,
		Result:       execution.Result,
		ErrorMessage: execution.ErrorMessage,
		CreatedAt:    execution.CreatedAt,
	}})
}

// ApplyRules POST /ops/tenants/:tenantID/tickets/:ticketID/apply-rules
// runs every enabled rule that matches the ticket, synchronously. This is
// the hook the external ticket service calls on ticket creation.
func (h *RulesHandler) ApplyRules(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	ticketID, err := paramInt64(c, "ticketID")
	if err != nil {
		return err
	}

	store, err := h.stores.TenantStore(c.UserContext(), *tenant)
	if err != nil {
		return err
	}
	executions, err := h.rules.ApplyEnabledRules(c.UserContext(), store, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", fiber.Map{"ticket_id": ticketID})
		}
		return err
	}

	items := make([]dto.RuleExecutionResponse, 0, len(executions))
	for _, e := range executions {
		items = append(items, dto.RuleExecutionResponse{
			ID:           e.ID,
			RuleID:       e.RuleID,
			TicketID:     e.TicketID,
			Action:       e.Action,
			Result:       e.Result,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// RunRule POST /ops/tenants/:tenantID/rules/:ruleID/run.
func (h *RulesHandler) RunRule(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	ruleID, err := paramInt64(c, "ruleID")
	if err != nil {
		return err
	}

	matched, started, err := h.runner.RunRuleInBackground(c.UserContext(), *tenant, ruleID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.NewNotFound("rule", fiber.Map{"rule_id": ruleID})
		case errors.Is(err, batch.ErrRuleDisabled):
			return apperrors.NewConflict("rule is disabled", nil)
		case errors.Is(err, batch.ErrQueueFull):
			return apperrors.NewServiceUnavailable("batch queue is full, try again later")
		}
		return err
	}

	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.RunRuleResponse{
		RuleID:  ruleID,
		Matched: matched,
		Started: started,
	}})
}

// ListExecutions GET /ops/tenants/:tenantID/rules/:ruleID/executions.
func (h *RulesHandler) ListExecutions(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	ruleID, err := paramInt64(c, "ruleID")
	if err != nil {
		return err
	}

	store, err := h.stores.TenantStore(c.UserContext(), *tenant)
	if err != nil {
		return err
	}
	executions, err := store.Rules.ListExecutions(c.UserContext(), ruleID, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}

	items := make([]dto.RuleExecutionResponse, 0, len(executions))
	for _, e := range executions {
		items = append(items, dto.RuleExecutionResponse{
			ID:           e.ID,
			RuleID:       e.RuleID,
			TicketID:     e.TicketID,
			Action:       e.Action,
			Result:       e.Result,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListNotifications GET /ops/tenants/:tenantID/notifications.
func (h *RulesHandler) ListNotifications(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	store, err := h.stores.TenantStore(c.UserContext(), *tenant)
	if err != nil {
		return err
	}
	notifications, err := store.Notifications.ListRecent(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}

	items := make([]dto.NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, dto.NotificationResponse{
			ID:        n.ID,
			TicketID:  n.TicketID,
			Type:      n.Type,
			Severity:  n.Severity,
			Message:   n.Message,
			Payload:   n.Payload,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *RulesHandler) tenant(c *fiber.Ctx) (*domain.Tenant, error) {
	tenantID := c.Params("tenantID")
	if tenantID == "" {
		return nil, apperrors.NewValidationError("tenant id required", nil)
	}
	tenant, err := h.tenants.GetByID(c.UserContext(), tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("tenant", fiber.Map{"tenant_id": tenantID})
		}
		return nil, err
	}
	if !tenant.IsActive {
		return nil, apperrors.NewNotFound("tenant", fiber.Map{"tenant_id": tenantID})
	}
	return tenant, nil
}

func paramInt64(c *fiber.Ctx, name string) (int64, error) {
	val, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError(name+" must be an integer", nil)
	}
	return val, nil
}
