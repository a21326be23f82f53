package domain

import "time"

// SLASource identifies the precedence tier that produced a ticket's SLA.
type SLASource string

const (
	SLASourceTicket   SLASource = "ticket"
	SLASourceCustomer SLASource = "customer"
	SLASourceCMDB     SLASource = "cmdb"
	SLASourceCategory SLASource = "category"
	SLASourceDefault  SLASource = "default"
	SLASourceError    SLASource = "error"
)

// Default breach thresholds applied when a definition leaves them unset.
const (
	DefaultNearBreachPercent = 85
	DefaultPastBreachPercent = 120
)

// SLADefinition is a named policy with escalation thresholds and an
// optional business-hours profile. Edits never affect tickets that already
// snapshotted the definition via sla_applied_at.
type SLADefinition struct {
	ID                int64
	TenantID          string
	Name              string
	NearBreachPercent float64
	PastBreachPercent float64
	BusinessHoursID   *int64
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NearPercent returns the configured near-breach threshold or the default.
func (d *SLADefinition) NearPercent() float64 {
	if d == nil || d.NearBreachPercent <= 0 {
		return DefaultNearBreachPercent
	}
	return d.NearBreachPercent
}

// PastPercent returns the configured past-breach threshold or the default.
func (d *SLADefinition) PastPercent() float64 {
	if d == nil || d.PastBreachPercent <= 0 {
		return DefaultPastBreachPercent
	}
	return d.PastBreachPercent
}

// BusinessHoursProfile describes a weekly working-hours calendar. When
// Is24x7 is set the calendar math is bypassed entirely and elapsed time is
// wall-clock.
type BusinessHoursProfile struct {
	ID          int64
	TenantID    string
	Name        string
	Timezone    string
	Weekdays    []time.Weekday
	StartMinute int // minutes from local midnight
	EndMinute   int
	Is24x7      bool
}

// ActiveOn reports whether the given weekday is part of the working week.
func (p *BusinessHoursProfile) ActiveOn(day time.Weekday) bool {
	for _, d := range p.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}
