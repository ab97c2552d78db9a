// Package policy is the clinic's time-sensitive cancellation and
// reschedule rule set. Everything here is a pure function of the
// appointment time and an injected "now": callers capture the clock once
// per request so a whole decision is internally consistent.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/vetsuite/vetsuite/internal/model"
)

// Tier thresholds in hours of lead time. Comparisons are strict; a lead
// time exactly equal to a threshold falls into the milder neighbouring
// tier (24.0h is not fee-bearing, 72.0h carries no warning at all).
const (
	BlockedWindowHours   = 24
	LateFeeWindowHours   = 24
	WarningWindowHours   = 48
	NoPenaltyWindowHours = 72

	// RescheduleMinHours gates client-requested rescheduling.
	RescheduleMinHours = 48

	// LateCancellationFeeCents is the fixed fee charged in the fee-bearing
	// tier.
	LateCancellationFeeCents int64 = 4000
)

const (
	MsgAlreadyOccurred   = "the appointment has already occurred"
	MsgCancelByPhone     = "cancellations within 24 hours must be arranged with the clinic by phone"
	MsgRescheduleByPhone = "rescheduling within 48 hours must be arranged with the clinic by phone"
	MsgLateFeeWarning    = "cancelling within 48 hours of the appointment incurs a late-cancellation fee"
	MsgShortNotice       = "please try to cancel earlier next time; slots this close are hard to re-book"
	MsgModerateNotice    = "thanks for letting us know ahead of time"
)

// CancelOutcome classifies one cancellation request.
type CancelOutcome struct {
	CanCancel bool
	// Status the appointment would take; empty when blocked.
	Status   model.AppointmentStatus
	HasFee   bool
	FeeCents int64
	Message  string
}

// ClassifyCancellation evaluates the tier policy top-down, first match
// wins. Lead time is measured in fractional wall-clock hours.
func ClassifyCancellation(scheduledAt, now time.Time) CancelOutcome {
	h := HoursUntil(scheduledAt, now)
	switch {
	case h < 0:
		return CancelOutcome{Message: MsgAlreadyOccurred}
	case h < BlockedWindowHours:
		return CancelOutcome{Message: MsgCancelByPhone}
	case h > LateFeeWindowHours && h < WarningWindowHours:
		return CancelOutcome{
			CanCancel: true,
			Status:    model.StatusCancelledLate,
			HasFee:    true,
			FeeCents:  LateCancellationFeeCents,
			Message:   MsgLateFeeWarning,
		}
	case h < WarningWindowHours:
		// Only the exact 24-hour boundary lands here: not blocked, not
		// fee-bearing, but still worth a warning.
		return CancelOutcome{CanCancel: true, Status: model.StatusCancelled, Message: MsgShortNotice}
	case h < NoPenaltyWindowHours:
		return CancelOutcome{CanCancel: true, Status: model.StatusCancelled, Message: MsgModerateNotice}
	default:
		return CancelOutcome{CanCancel: true, Status: model.StatusCancelled}
	}
}

// RescheduleCheck is the outcome of the single-threshold reschedule gate.
type RescheduleCheck struct {
	CanReschedule bool
	Message       string
}

// CanReschedule blocks below RescheduleMinHours; at or above it the move is
// allowed but still needs staff approval.
func CanReschedule(scheduledAt, now time.Time) RescheduleCheck {
	h := HoursUntil(scheduledAt, now)
	if h < 0 {
		return RescheduleCheck{Message: MsgAlreadyOccurred}
	}
	if h < RescheduleMinHours {
		return RescheduleCheck{Message: MsgRescheduleByPhone}
	}
	return RescheduleCheck{CanReschedule: true}
}

// PenaltyDue reports whether the lifecycle's independent late-cancellation
// penalty applies: the transition to cancelled_late happened with lead
// time inside [0, 24) hours.
func PenaltyDue(scheduledAt, now time.Time) bool {
	h := HoursUntil(scheduledAt, now)
	return h >= 0 && h < LateFeeWindowHours
}

// HoursUntil is the signed lead time in fractional hours.
func HoursUntil(scheduledAt, now time.Time) float64 {
	return scheduledAt.Sub(now).Hours()
}

// FormatLeadTime renders a duration as "Nd Nh Nm" parts for display.
// Blocking logic never depends on this rendering.
func FormatLeadTime(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	totalMinutes := int(d.Minutes())
	days := totalMinutes / (24 * 60)
	hours := totalMinutes % (24 * 60) / 60
	minutes := totalMinutes % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
