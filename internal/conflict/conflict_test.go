package conflict

import (
	"testing"
	"time"

	"github.com/vetsuite/vetsuite/internal/model"
)

func appt(id string, start time.Time, minutes int, status model.AppointmentStatus) model.Appointment {
	return model.Appointment{
		ID:              id,
		ScheduledAt:     start,
		DurationMinutes: minutes,
		Status:          status,
	}
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	existing := []model.Appointment{appt("a1", base, 45, model.StatusConfirmed)}

	cases := []struct {
		name    string
		start   time.Time
		minutes int
		want    bool
	}{
		{"identical interval", base, 45, true},
		{"new starts inside existing", base.Add(30 * time.Minute), 45, true},
		{"new ends inside existing", base.Add(-30 * time.Minute), 45, true},
		{"new swallows existing", base.Add(-10 * time.Minute), 90, true},
		{"back to back after", base.Add(45 * time.Minute), 45, false},
		{"back to back before", base.Add(-45 * time.Minute), 45, false},
		{"disjoint", base.Add(2 * time.Hour), 45, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(existing, tc.start, tc.minutes, ""); got != tc.want {
				t.Fatalf("Overlaps(%s, %dm) = %v, want %v", tc.start, tc.minutes, got, tc.want)
			}
		})
	}
}

func TestOverlaps_IgnoresCancelled(t *testing.T) {
	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	existing := []model.Appointment{
		appt("a1", base, 45, model.StatusCancelled),
		appt("a2", base, 45, model.StatusCancelledLate),
	}
	if Overlaps(existing, base, 45, "") {
		t.Fatal("cancelled appointments must not block the slot")
	}
}

func TestOverlaps_ExcludesSelf(t *testing.T) {
	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	existing := []model.Appointment{appt("a1", base, 45, model.StatusConfirmed)}

	if Overlaps(existing, base.Add(15*time.Minute), 45, "a1") {
		t.Fatal("an appointment must not conflict with itself when moving")
	}
	if !Overlaps(existing, base.Add(15*time.Minute), 45, "other") {
		t.Fatal("exclusion must only apply to the matching id")
	}
}
