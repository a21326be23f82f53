package service

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/businesshours"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// PercentCalculator computes response/resolve percent-elapsed for a
// ticket. Stateless; Now is injectable for tests.
type PercentCalculator struct {
	Now func() time.Time
}

// NewPercentCalculator creates a calculator using the wall clock.
func NewPercentCalculator() *PercentCalculator {
	return &PercentCalculator{Now: time.Now}
}

// ResponsePercent returns how far the ticket is through its response
// target window. 0 when the ticket has no response deadline or the target
// window is empty (misconfigured SLAs degrade to 0%, never an error).
func (c *PercentCalculator) ResponsePercent(ticket *domain.Ticket, profile *domain.BusinessHoursProfile) float64 {
	if ticket.ResponseDueAt == nil || ticket.CreatedAt.IsZero() {
		return 0
	}
	elapsed := businesshours.ElapsedBusinessMinutes(ticket.CreatedAt, c.Now(), profile)
	total := businesshours.ElapsedBusinessMinutes(ticket.CreatedAt, *ticket.ResponseDueAt, profile)
	return percentOf(elapsed, total)
}

// ResolvePercent returns how far the ticket is through its resolution
// target window. The clock starts at ownership (or first response when
// ownership is unset) and the deadline is shifted forward by the
// accumulated pause time, crediting pauses to the SLA rather than merely
// hiding them from the clock.
func (c *PercentCalculator) ResolvePercent(ticket *domain.Ticket, profile *domain.BusinessHoursProfile) float64 {
	start := ticket.ResolutionClockStart()
	if start == nil || ticket.ResolveDueAt == nil {
		return 0
	}
	due := ticket.ResolveDueAt.Add(time.Duration(ticket.SLAPauseTotalSeconds) * time.Second)
	elapsed := businesshours.ElapsedBusinessMinutes(*start, c.Now(), profile)
	total := businesshours.ElapsedBusinessMinutes(*start, due, profile)
	return percentOf(elapsed, total)
}

func percentOf(elapsed, total float64) float64 {
	if total <= 0 {
		// Guards divide-by-zero on misconfigured SLAs; also covers pause
		// credit pushing the deadline past the clock start.
		return 0
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed / total * 100
}
