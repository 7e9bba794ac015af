package services

import "time"

// DefaultWeekend is used when no weekend days are configured.
var DefaultWeekend = []time.Weekday{time.Saturday, time.Sunday}

// EstimateDeliveryDate walks forward from the day after from, counting only
// days that are not in weekend, and returns the day on which businessDays
// have been counted. The time of day of from is preserved. A non-positive
// businessDays returns from unchanged.
func EstimateDeliveryDate(from time.Time, businessDays int, weekend []time.Weekday) time.Time {
	if businessDays <= 0 {
		return from
	}
	off := make(map[time.Weekday]bool, len(weekend))
	for _, day := range weekend {
		off[day] = true
	}
	if len(off) >= 7 {
		// Every day is a weekend day; fall back to calendar days.
		return from.AddDate(0, 0, businessDays)
	}

	current := from
	for counted := 0; counted < businessDays; {
		current = current.AddDate(0, 0, 1)
		if !off[current.Weekday()] {
			counted++
		}
	}
	return current
}
