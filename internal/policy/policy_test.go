package policy

import (
	"testing"
	"time"

	"github.com/vetsuite/vetsuite/internal/model"
)

var now = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func at(hoursAhead float64) time.Time {
	return now.Add(time.Duration(hoursAhead * float64(time.Hour)))
}

func TestClassifyCancellation_Tiers(t *testing.T) {
	cases := []struct {
		name        string
		scheduledAt time.Time
		canCancel   bool
		status      model.AppointmentStatus
		hasFee      bool
		message     string
	}{
		{"already occurred", at(-1), false, "", false, MsgAlreadyOccurred},
		{"10h out is phone-only", at(10), false, "", false, MsgCancelByPhone},
		{"just under 24h is phone-only", at(23.9), false, "", false, MsgCancelByPhone},
		{"exactly 24h is free", at(24), true, model.StatusCancelled, false, MsgShortNotice},
		{"34h out pays the fee", at(34), true, model.StatusCancelledLate, true, MsgLateFeeWarning},
		{"just under 48h pays the fee", at(47.9), true, model.StatusCancelledLate, true, MsgLateFeeWarning},
		{"exactly 48h is free with notice", at(48), true, model.StatusCancelled, false, MsgModerateNotice},
		{"60h is free with notice", at(60), true, model.StatusCancelled, false, MsgModerateNotice},
		{"exactly 72h is free", at(72), true, model.StatusCancelled, false, ""},
		{"96h is free", at(96), true, model.StatusCancelled, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := ClassifyCancellation(tc.scheduledAt, now)
			if out.CanCancel != tc.canCancel {
				t.Fatalf("CanCancel = %v, want %v", out.CanCancel, tc.canCancel)
			}
			if out.Status != tc.status {
				t.Fatalf("Status = %q, want %q", out.Status, tc.status)
			}
			if out.HasFee != tc.hasFee {
				t.Fatalf("HasFee = %v, want %v", out.HasFee, tc.hasFee)
			}
			if tc.hasFee && out.FeeCents != LateCancellationFeeCents {
				t.Fatalf("FeeCents = %d, want %d", out.FeeCents, LateCancellationFeeCents)
			}
			if out.Message != tc.message {
				t.Fatalf("Message = %q, want %q", out.Message, tc.message)
			}
		})
	}
}

func TestCanReschedule(t *testing.T) {
	cases := []struct {
		name        string
		scheduledAt time.Time
		allowed     bool
		message     string
	}{
		{"already occurred", at(-2), false, MsgAlreadyOccurred},
		{"30h out blocked", at(30), false, MsgRescheduleByPhone},
		{"just under 48h blocked", at(47.9), false, MsgRescheduleByPhone},
		{"exactly 48h allowed", at(48), true, ""},
		{"a week out allowed", at(7 * 24), true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check := CanReschedule(tc.scheduledAt, now)
			if check.CanReschedule != tc.allowed {
				t.Fatalf("CanReschedule = %v, want %v", check.CanReschedule, tc.allowed)
			}
			if check.Message != tc.message {
				t.Fatalf("Message = %q, want %q", check.Message, tc.message)
			}
		})
	}
}

func TestPenaltyDue(t *testing.T) {
	cases := []struct {
		hoursAhead float64
		want       bool
	}{
		{-1, false},
		{0, true},
		{10, true},
		{23.9, true},
		{24, false},
		{34, false},
	}
	for _, tc := range cases {
		if got := PenaltyDue(at(tc.hoursAhead), now); got != tc.want {
			t.Fatalf("PenaltyDue(%+.1fh) = %v, want %v", tc.hoursAhead, got, tc.want)
		}
	}
}

func TestFormatLeadTime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{45 * time.Minute, "45m"},
		{2 * time.Hour, "2h"},
		{26*time.Hour + 5*time.Minute, "1d 2h 5m"},
		{-90 * time.Minute, "1h 30m"},
	}
	for _, tc := range cases {
		if got := FormatLeadTime(tc.d); got != tc.want {
			t.Fatalf("FormatLeadTime(%s) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
