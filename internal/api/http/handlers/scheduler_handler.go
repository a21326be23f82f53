package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/scheduler"
)

// SchedulerHandler exposes scheduler state and a manual trigger.
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerHandler constructs handler.
func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s}
}

// Status GET /ops/scheduler/status.
func (h *SchedulerHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.scheduler.Snapshot()})
}

// Run POST /ops/scheduler/run triggers an immediate cycle. Returns 202
// whether or not the cycle actually ran; an in-flight cycle makes the
// trigger a no-op.
func (h *SchedulerHandler) Run(c *fiber.Ctx) error {
	// Detached from the request context so the cycle outlives the response.
	go func() {
		_ = h.scheduler.RunCycle(context.Background())
	}()
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"triggered": true}})
}
