// Package lifecycle drives an appointment from booking through its status
// machine to completion or cancellation, together with the side effects a
// transition triggers (penalty ledger entries, vaccination and medical
// records, outbox notifications).
package lifecycle

import (
	"github.com/vetsuite/vetsuite/internal/apperr"
	"github.com/vetsuite/vetsuite/internal/model"
)

// VaccinationOutcome is the staff's answer to "was the vaccination actually
// given" when completing a vaccination appointment. The zero value is
// deliberate: callers that never ask the question leave records untouched.
type VaccinationOutcome int

const (
	VaccinationNotApplicable VaccinationOutcome = iota
	VaccinationPerformed
	VaccinationNotPerformed
)

// initialStatus maps the booking actor to the starting state: client
// bookings wait for confirmation, staff bookings are confirmed on entry.
func initialStatus(role model.Role) model.AppointmentStatus {
	if role.Staff() {
		return model.StatusConfirmed
	}
	return model.StatusProposed
}

// validateTransition is the status-machine guard. Terminal states accept no
// further transitions; everything else may move to any valid status, since
// front-desk reality skips steps (a walk-in goes straight to in_progress).
func validateTransition(current, next model.AppointmentStatus) error {
	if !model.ValidStatus(next) {
		return apperr.Validation("unknown status %q", next)
	}
	if current.Terminal() {
		return apperr.Validation("appointment is %s and cannot change status", current)
	}
	if current == next {
		return apperr.Validation("appointment is already %s", current)
	}
	return nil
}
