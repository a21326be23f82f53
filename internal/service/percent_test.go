package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/sla-engine/internal/domain"
)

func fixedClock(at time.Time) *PercentCalculator {
	return &PercentCalculator{Now: func() time.Time { return at }}
}

func TestResponsePercent(t *testing.T) {
	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("no deadline yields zero", func(t *testing.T) {
		calc := fixedClock(created.Add(time.Hour))
		ticket := &domain.Ticket{CreatedAt: created}
		assert.Zero(t, calc.ResponsePercent(ticket, nil))
	})

	t.Run("halfway through window", func(t *testing.T) {
		due := created.Add(2 * time.Hour)
		calc := fixedClock(created.Add(time.Hour))
		ticket := &domain.Ticket{CreatedAt: created, ResponseDueAt: &due}
		assert.InDelta(t, 50, calc.ResponsePercent(ticket, nil), 0.01)
	})

	t.Run("empty window yields zero", func(t *testing.T) {
		due := created
		calc := fixedClock(created.Add(time.Hour))
		ticket := &domain.Ticket{CreatedAt: created, ResponseDueAt: &due}
		assert.Zero(t, calc.ResponsePercent(ticket, nil))
	})

	t.Run("past deadline exceeds hundred", func(t *testing.T) {
		due := created.Add(time.Hour)
		calc := fixedClock(created.Add(90 * time.Minute))
		ticket := &domain.Ticket{CreatedAt: created, ResponseDueAt: &due}
		assert.InDelta(t, 150, calc.ResponsePercent(ticket, nil), 0.01)
	})
}

func TestResolvePercent(t *testing.T) {
	responded := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	owned := responded.Add(30 * time.Minute)
	due := responded.Add(4 * time.Hour)

	t.Run("no clock start yields zero", func(t *testing.T) {
		calc := fixedClock(responded.Add(time.Hour))
		ticket := &domain.Ticket{ResolveDueAt: &due}
		assert.Zero(t, calc.ResolvePercent(ticket, nil))
	})

	t.Run("ownership takes precedence over first response", func(t *testing.T) {
		calc := fixedClock(owned.Add(time.Hour))
		ticket := &domain.Ticket{
			FirstRespondedAt:   &responded,
			OwnershipStartedAt: &owned,
			ResolveDueAt:       &due,
		}
		// Clock starts at ownership: 60 elapsed of 210 total minutes.
		assert.InDelta(t, 100*60.0/210.0, calc.ResolvePercent(ticket, nil), 0.01)
	})

	t.Run("pause time shifts the deadline", func(t *testing.T) {
		calc := fixedClock(responded.Add(4 * time.Hour))
		ticket := &domain.Ticket{
			FirstRespondedAt:     &responded,
			ResolveDueAt:         &due,
			SLAPauseTotalSeconds: 3600,
		}
		// At the nominal deadline with one hour of pause credit the ticket
		// is only 4/5 through the shifted window.
		assert.InDelta(t, 80, calc.ResolvePercent(ticket, nil), 0.01)
	})

	t.Run("pause credit past the clock start yields zero", func(t *testing.T) {
		earlyDue := responded.Add(-2 * time.Hour)
		calc := fixedClock(responded.Add(time.Hour))
		ticket := &domain.Ticket{
			FirstRespondedAt: &responded,
			ResolveDueAt:     &earlyDue,
		}
		assert.Zero(t, calc.ResolvePercent(ticket, nil))
	})
}
