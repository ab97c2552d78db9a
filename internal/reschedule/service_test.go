package reschedule

import (
	"testing"
	"time"
)

func TestForcedDistanceOK(t *testing.T) {
	original := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		proposed time.Time
		want     bool
	}{
		{"next day", original.AddDate(0, 0, 1), false},
		{"six days later", original.AddDate(0, 0, 6), false},
		{"just under seven days", original.Add(7*24*time.Hour - time.Minute), false},
		{"exactly seven days", original.AddDate(0, 0, 7), true},
		{"eight days later", original.AddDate(0, 0, 8), true},
		{"seven days earlier", original.AddDate(0, 0, -7), true},
		{"six days earlier", original.AddDate(0, 0, -6), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := forcedDistanceOK(original, tc.proposed); got != tc.want {
				t.Fatalf("forcedDistanceOK(%s) = %v, want %v", tc.proposed, got, tc.want)
			}
		})
	}
}
