// Package conflict implements the booking-time overlap check. It is
// stricter than the slot grid's exact-start test and is the authority for
// whether a write may proceed; callers run it inside the same transaction
// as the insert or update.
package conflict

import (
	"time"

	"github.com/vetsuite/vetsuite/internal/model"
)

// Overlaps reports whether a candidate [start, start+duration) interval
// intersects any non-cancelled appointment in existing. Both directions
// are covered: the candidate starting inside an existing appointment and
// an existing appointment starting inside the candidate. excludeID skips
// the appointment being updated.
func Overlaps(existing []model.Appointment, start time.Time, durationMinutes int, excludeID string) bool {
	if durationMinutes <= 0 {
		return false
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	for _, a := range existing {
		if a.Status.Cancelled() {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		// Half-open intervals: [start,end) meets [a.ScheduledAt,a.End()) iff
		// start < a.End() && a.ScheduledAt < end.
		if start.Before(a.End()) && a.ScheduledAt.Before(end) {
			return true
		}
	}
	return false
}
