package availability

import (
	"testing"
	"time"

	"github.com/vetsuite/vetsuite/internal/model"
)

var day = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) // a Monday

func hours(start, end int) *model.WorkingHours {
	return &model.WorkingHours{
		PractitionerID: "p1",
		Weekday:        time.Monday,
		IsWorking:      true,
		StartMinute:    start,
		EndMinute:      end,
	}
}

func TestResolveDayWindow_WorkingHours(t *testing.T) {
	w, ok := ResolveDayWindow(hours(9*60, 17*60), nil)
	if !ok {
		t.Fatal("expected an open window")
	}
	if w.StartMinute != 9*60 || w.EndMinute != 17*60 {
		t.Fatalf("unexpected window %+v", w)
	}
}

func TestResolveDayWindow_NoHours(t *testing.T) {
	if _, ok := ResolveDayWindow(nil, nil); ok {
		t.Fatal("expected closed day without working hours")
	}
	notWorking := hours(9*60, 17*60)
	notWorking.IsWorking = false
	if _, ok := ResolveDayWindow(notWorking, nil); ok {
		t.Fatal("expected closed day when is_working is false")
	}
}

func TestResolveDayWindow_ApprovedOverrideWins(t *testing.T) {
	override := &model.ScheduleOverride{
		StartMinute: 12 * 60,
		EndMinute:   15 * 60,
		Status:      model.OverrideApproved,
	}
	w, ok := ResolveDayWindow(hours(9*60, 17*60), override)
	if !ok {
		t.Fatal("expected an open window")
	}
	if w.StartMinute != 12*60 || w.EndMinute != 15*60 {
		t.Fatalf("override should replace working hours, got %+v", w)
	}
}

func TestResolveDayWindow_DayOffSentinel(t *testing.T) {
	dayOff := &model.ScheduleOverride{StartMinute: 0, EndMinute: 0, Status: model.OverrideApproved}
	if _, ok := ResolveDayWindow(hours(9*60, 17*60), dayOff); ok {
		t.Fatal("approved (0,0) override must close the day")
	}
}

func TestResolveDayWindow_PendingOverrideIgnored(t *testing.T) {
	pending := &model.ScheduleOverride{StartMinute: 0, EndMinute: 0, Status: model.OverridePending}
	w, ok := ResolveDayWindow(hours(9*60, 17*60), pending)
	if !ok || w.StartMinute != 9*60 {
		t.Fatalf("pending override must not affect the window, got %+v ok=%v", w, ok)
	}
}

func TestSlotGrid_HourlySteps(t *testing.T) {
	now := day.Add(-24 * time.Hour) // query a future day, no guard
	slots := SlotGrid(day, DayWindow{StartMinute: 9 * 60, EndMinute: 12 * 60}, nil, now, model.RoleClient)

	want := []string{"09:00", "10:00", "11:00"}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, s := range slots {
		if s.Time != want[i] || !s.Available {
			t.Fatalf("slot %d = %+v, want %s available", i, s, want[i])
		}
	}
}

func TestSlotGrid_FractionalClose(t *testing.T) {
	// A 16:30 close still yields a 16:00 slot: enumeration is start < end.
	now := day.Add(-24 * time.Hour)
	slots := SlotGrid(day, DayWindow{StartMinute: 9 * 60, EndMinute: 16*60 + 30}, nil, now, model.RoleClient)
	last := slots[len(slots)-1]
	if last.Time != "16:00" {
		t.Fatalf("expected last slot 16:00, got %s", last.Time)
	}
}

func TestSlotGrid_BookedStartMarksUnavailable(t *testing.T) {
	now := day.Add(-24 * time.Hour)
	booked := []time.Time{day.Add(10 * time.Hour)}
	slots := SlotGrid(day, DayWindow{StartMinute: 9 * 60, EndMinute: 12 * 60}, booked, now, model.RoleClient)

	for _, s := range slots {
		wantAvailable := s.Time != "10:00"
		if s.Available != wantAvailable {
			t.Fatalf("slot %s available=%v, want %v", s.Time, s.Available, wantAvailable)
		}
	}
}

func TestSlotGrid_SameDayClientGuard(t *testing.T) {
	window := DayWindow{StartMinute: 9 * 60, EndMinute: 13 * 60}
	cases := []struct {
		name      string
		now       time.Time
		slot      string
		available bool
	}{
		{"more than 30m ahead", day.Add(9 * time.Hour), "10:00", true},
		{"exactly 30m ahead", day.Add(9*time.Hour + 30*time.Minute), "10:00", true},
		{"29m ahead", day.Add(9*time.Hour + 31*time.Minute), "10:00", false},
		{"already started", day.Add(10*time.Hour + 1*time.Minute), "10:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slots := SlotGrid(day, window, nil, tc.now, model.RoleClient)
			got := findSlot(t, slots, tc.slot)
			if got.Available != tc.available {
				t.Fatalf("slot %s at now=%s available=%v, want %v", tc.slot, tc.now, got.Available, tc.available)
			}
		})
	}
}

func TestSlotGrid_SameDayStaffGuard(t *testing.T) {
	window := DayWindow{StartMinute: 9 * 60, EndMinute: 13 * 60}
	cases := []struct {
		name      string
		now       time.Time
		slot      string
		available bool
	}{
		{"staff inside lead window", day.Add(9*time.Hour + 45*time.Minute), "10:00", true},
		{"staff exactly 60m behind", day.Add(11 * time.Hour), "10:00", true},
		{"staff 61m behind", day.Add(11*time.Hour + 1*time.Minute), "10:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slots := SlotGrid(day, window, nil, tc.now, model.RolePractitioner)
			got := findSlot(t, slots, tc.slot)
			if got.Available != tc.available {
				t.Fatalf("slot %s at now=%s available=%v, want %v", tc.slot, tc.now, got.Available, tc.available)
			}
		})
	}
}

func TestSlotGrid_GuardOnlyToday(t *testing.T) {
	// Tomorrow's first slot is bookable even one minute before midnight.
	now := day.Add(-1 * time.Minute)
	slots := SlotGrid(day, DayWindow{StartMinute: 9 * 60, EndMinute: 10 * 60}, nil, now, model.RoleClient)
	if !slots[0].Available {
		t.Fatal("lead-time guard must not apply across dates")
	}
}

func findSlot(t *testing.T, slots []model.Slot, label string) model.Slot {
	t.Helper()
	for _, s := range slots {
		if s.Time == label {
			return s
		}
	}
	t.Fatalf("slot %s not in grid", label)
	return model.Slot{}
}

func TestParseClock(t *testing.T) {
	if min, err := ParseClock("09:30"); err != nil || min != 9*60+30 {
		t.Fatalf("ParseClock(09:30) = %d, %v", min, err)
	}
	for _, bad := range []string{"", "25:00", "10:61", "abc"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestReduceTimeRange(t *testing.T) {
	tr := ReduceTimeRange([]DayWindow{
		{StartMinute: 10 * 60, EndMinute: 14 * 60},
		{StartMinute: 8 * 60, EndMinute: 12 * 60},
		{}, // closed practitioner, ignored
	})
	if !tr.HasPractitioners || tr.StartTime != "08:00" || tr.EndTime != "14:00" {
		t.Fatalf("unexpected range %+v", tr)
	}

	empty := ReduceTimeRange(nil)
	if empty.HasPractitioners {
		t.Fatal("no windows must yield has_practitioners=false")
	}
}
