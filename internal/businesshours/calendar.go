// Package businesshours converts wall-clock spans into working-time
// minutes according to a tenant's weekly calendar. Pure functions, no
// state.
package businesshours

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// ElapsedBusinessMinutes returns the number of business minutes between
// start and end under the given profile.
//
// With a nil or 24x7 profile the result is raw wall-clock minutes, which
// can be negative when end precedes start; callers treat negative as zero
// elapsed. Otherwise the calendar is walked day by day in the profile's
// timezone, counting only minutes inside [StartMinute, EndMinute) on
// active weekdays. Never returns a negative value in calendar mode.
func ElapsedBusinessMinutes(start, end time.Time, profile *domain.BusinessHoursProfile) float64 {
	if profile == nil || profile.Is24x7 {
		return end.Sub(start).Minutes()
	}
	if !end.After(start) {
		return 0
	}

	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		// Misconfigured timezone degrades to UTC rather than failing the
		// evaluation cycle.
		loc = time.UTC
	}

	s := start.In(loc)
	e := end.In(loc)

	total := 0.0
	year, month, day := s.Date()
	for cursor := time.Date(year, month, day, 0, 0, 0, 0, loc); cursor.Before(e); cursor = cursor.AddDate(0, 0, 1) {
		if !profile.ActiveOn(cursor.Weekday()) {
			continue
		}
		winStart := cursor.Add(time.Duration(profile.StartMinute) * time.Minute)
		winEnd := cursor.Add(time.Duration(profile.EndMinute) * time.Minute)

		lo := winStart
		if s.After(lo) {
			lo = s
		}
		hi := winEnd
		if e.Before(hi) {
			hi = e
		}
		if hi.After(lo) {
			total += hi.Sub(lo).Minutes()
		}
	}
	return total
}
