// Package availability computes the bookable slot grid for a practitioner
// and day. The grid is advisory: the authoritative double-booking guard is
// the conflict check re-executed inside the booking transaction.
package availability

import (
	"fmt"
	"time"

	"github.com/vetsuite/vetsuite/internal/model"
)

const (
	// SlotStepMinutes is the grid granularity: a 45-minute visit plus a
	// 15-minute buffer.
	SlotStepMinutes = 60

	// DefaultDurationMinutes is the bookable visit length inside a slot.
	DefaultDurationMinutes = 45

	// ClientMinLeadMinutes blocks clients from grabbing a slot starting in
	// less than 30 minutes. Today only.
	ClientMinLeadMinutes = 30

	// StaffMaxBehindMinutes lets staff backfill a slot at most 60 minutes
	// in the past. Today only.
	StaffMaxBehindMinutes = 60
)

// DayWindow is the resolved open interval for one practitioner-day, in
// minutes from midnight.
type DayWindow struct {
	StartMinute int
	EndMinute   int
}

func (w DayWindow) Empty() bool { return w.EndMinute <= w.StartMinute }

// ResolveDayWindow resolves the open interval for a date. Priority order:
// an approved override for the exact date fully replaces working hours
// (its (0,0) sentinel means day off); otherwise the weekday's working
// hours apply; otherwise the day is closed. The cascade short-circuits so
// each resolver stays independently testable.
func ResolveDayWindow(hours *model.WorkingHours, override *model.ScheduleOverride) (DayWindow, bool) {
	if override != nil && override.Status == model.OverrideApproved {
		return resolveOverride(override)
	}
	return resolveWorkingHours(hours)
}

func resolveOverride(override *model.ScheduleOverride) (DayWindow, bool) {
	if override.DayOff() {
		return DayWindow{}, false
	}
	w := DayWindow{StartMinute: override.StartMinute, EndMinute: override.EndMinute}
	if w.Empty() {
		return DayWindow{}, false
	}
	return w, true
}

func resolveWorkingHours(hours *model.WorkingHours) (DayWindow, bool) {
	if hours == nil || !hours.IsWorking {
		return DayWindow{}, false
	}
	w := DayWindow{StartMinute: hours.StartMinute, EndMinute: hours.EndMinute}
	if w.Empty() {
		return DayWindow{}, false
	}
	return w, true
}

// SlotGrid enumerates slots at SlotStepMinutes boundaries from the window
// open (inclusive) to close (exclusive). A slot is unavailable when a
// non-cancelled appointment starts at exactly that boundary, or when the
// same-day lead-time guard applies for the caller's role. date must be
// midnight of the queried day in the clinic's location.
func SlotGrid(date time.Time, window DayWindow, bookedStarts []time.Time, now time.Time, role model.Role) []model.Slot {
	if window.Empty() {
		return nil
	}

	sameDay := sameDate(date, now)
	var slots []model.Slot
	for min := window.StartMinute; min < window.EndMinute; min += SlotStepMinutes {
		at := date.Add(time.Duration(min) * time.Minute)
		available := !startsAt(bookedStarts, at)
		if available && sameDay {
			available = leadTimeAllows(at, now, role)
		}
		slots = append(slots, model.Slot{Time: clockLabel(min), Available: available})
	}
	return slots
}

// leadTimeAllows applies the look-ahead/look-behind guard. The comparison
// is strict: minutes-until-slot is signed, and a value exactly at the
// boundary is allowed.
func leadTimeAllows(slot, now time.Time, role model.Role) bool {
	minutesUntil := slot.Sub(now).Minutes()
	if role.Staff() {
		return minutesUntil >= -StaffMaxBehindMinutes
	}
	return minutesUntil >= ClientMinLeadMinutes
}

func startsAt(bookedStarts []time.Time, at time.Time) bool {
	for _, b := range bookedStarts {
		if b.Equal(at) {
			return true
		}
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clockLabel(minuteOfDay int) string {
	return fmt.Sprintf("%02d:%02d", minuteOfDay/60, minuteOfDay%60)
}

// ParseClock parses an "HH:MM" label back to minutes from midnight.
func ParseClock(label string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(label, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", label)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", label)
	}
	return h*60 + m, nil
}

// TimeRange is the clinic-wide open envelope for one date.
type TimeRange struct {
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	HasPractitioners bool   `json:"has_practitioners"`
}

// ReduceTimeRange folds per-practitioner windows into the minimum open and
// maximum close, bounding a clinic-wide calendar view.
func ReduceTimeRange(windows []DayWindow) TimeRange {
	var out TimeRange
	first := true
	minStart, maxEnd := 0, 0
	for _, w := range windows {
		if w.Empty() {
			continue
		}
		if first || w.StartMinute < minStart {
			minStart = w.StartMinute
		}
		if first || w.EndMinute > maxEnd {
			maxEnd = w.EndMinute
		}
		first = false
	}
	if first {
		return out
	}
	return TimeRange{
		StartTime:        clockLabel(minStart),
		EndTime:          clockLabel(maxEnd),
		HasPractitioners: true,
	}
}

// WindowContains reports whether a slot starting at minuteOfDay falls inside
// the window.
func WindowContains(w DayWindow, minuteOfDay int) bool {
	return !w.Empty() && minuteOfDay >= w.StartMinute && minuteOfDay < w.EndMinute
}
