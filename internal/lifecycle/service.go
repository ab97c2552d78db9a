package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/apperr"
	"github.com/vetsuite/vetsuite/internal/availability"
	"github.com/vetsuite/vetsuite/internal/conflict"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/outbox"
	"github.com/vetsuite/vetsuite/internal/policy"
	"github.com/vetsuite/vetsuite/internal/storage"
)

type Service struct {
	repo    Store
	outbox  EventStore
	billing Biller
	logger  *slog.Logger
	clock   func() time.Time
}

func NewService(repo Store, outboxRepo EventStore, billingSvc Biller, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		outbox:  outboxRepo,
		billing: billingSvc,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type BookParams struct {
	PractitionerID    string
	PetID             string
	ScheduledAt       time.Time
	DurationMinutes   int
	Reason            string
	VaccinationTypeID string
}

// Book creates an appointment. The availability grid the caller saw is
// advisory only; the interval-overlap check inside this transaction is the
// authoritative double-booking guard.
func (s *Service) Book(ctx context.Context, p BookParams, actor model.Actor) (model.Appointment, error) {
	if p.ScheduledAt.IsZero() {
		return model.Appointment{}, apperr.Validation("scheduledAt is required")
	}
	if p.DurationMinutes <= 0 {
		p.DurationMinutes = availability.DefaultDurationMinutes
	}
	now := s.clock()
	if !actor.Role.Staff() && !p.ScheduledAt.After(now) {
		return model.Appointment{}, apperr.Validation("appointments must be booked for a future time")
	}

	practitioner, err := s.repo.GetPractitioner(ctx, p.PractitionerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("practitioner %s not found", p.PractitionerID)
		}
		return model.Appointment{}, err
	}
	if !practitioner.IsActive {
		return model.Appointment{}, apperr.Validation("practitioner %s is not accepting appointments", practitioner.Name)
	}

	pet, err := s.repo.GetPet(ctx, p.PetID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("pet %s not found", p.PetID)
		}
		return model.Appointment{}, err
	}
	if !actor.Role.Staff() && pet.OwnerID != actor.ID {
		return model.Appointment{}, apperr.Forbidden("pet %s does not belong to you", p.PetID)
	}

	if p.VaccinationTypeID != "" {
		if _, err := s.repo.GetVaccinationType(ctx, p.VaccinationTypeID); err != nil {
			if storage.IsNotFound(err) {
				return model.Appointment{}, apperr.NotFound("vaccination type %s not found", p.VaccinationTypeID)
			}
			return model.Appointment{}, err
		}
	}

	appt := model.Appointment{
		PractitionerID:    p.PractitionerID,
		PetID:             p.PetID,
		ScheduledAt:       p.ScheduledAt.UTC(),
		DurationMinutes:   p.DurationMinutes,
		Status:            initialStatus(actor.Role),
		VaccinationTypeID: p.VaccinationTypeID,
		Reason:            p.Reason,
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer tx.Rollback(ctx)

	existing, err := s.repo.ListForConflict(ctx, tx, appt.PractitionerID, appt.ScheduledAt, appt.End())
	if err != nil {
		return model.Appointment{}, err
	}
	if conflict.Overlaps(existing, appt.ScheduledAt, appt.DurationMinutes, "") {
		return model.Appointment{}, apperr.Conflict("the practitioner already has an appointment in this time range")
	}

	id, err := s.repo.CreateAppointment(ctx, tx, &appt)
	if err != nil {
		if storage.IsExclusionViolation(err) {
			return model.Appointment{}, apperr.Conflict("the practitioner already has an appointment in this time range")
		}
		return model.Appointment{}, err
	}
	appt.ID = id

	if err := s.emit(ctx, tx, outbox.EventAppointmentBooked, appt.ID, bookedPayload{
		AppointmentID:  appt.ID,
		PractitionerID: appt.PractitionerID,
		PetID:          appt.PetID,
		ScheduledAt:    appt.ScheduledAt,
		Status:         string(appt.Status),
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"practitioner_id", appt.PractitionerID,
		"status", appt.Status)
	return appt, nil
}

// CancelResult reports the status the appointment took plus fee and
// advisory-message details for the caller.
type CancelResult struct {
	Status   model.AppointmentStatus
	HasFee   bool
	FeeCents int64
	Message  string
}

// Cancel applies the tiered cancellation policy. Below the phone-only
// window no status change happens at all; in the fee window the
// appointment lands in cancelled_late with the fee recorded unpaid.
func (s *Service) Cancel(ctx context.Context, appointmentID string, actor model.Actor) (CancelResult, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return CancelResult{}, err
	}
	defer tx.Rollback(ctx)

	appt, err := s.repo.GetAppointmentForUpdate(ctx, tx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return CancelResult{}, apperr.NotFound("appointment %s not found", appointmentID)
		}
		return CancelResult{}, err
	}
	if err := s.authorize(ctx, appt, actor); err != nil {
		return CancelResult{}, err
	}
	if appt.Status.Terminal() {
		return CancelResult{}, apperr.Validation("appointment is %s and cannot be cancelled", appt.Status)
	}

	now := s.clock()
	outcome := policy.ClassifyCancellation(appt.ScheduledAt, now)
	if !outcome.CanCancel {
		return CancelResult{}, apperr.Validation("%s", outcome.Message)
	}

	var feeCents *int64
	feeNote := ""
	if outcome.HasFee {
		fee := outcome.FeeCents
		feeCents = &fee
		feeNote = "cancelled " + policy.FormatLeadTime(appt.ScheduledAt.Sub(now)) + " before the appointment"
	}
	if err := s.repo.ApplyCancellation(ctx, tx, appt.ID, outcome.Status, feeCents, feeNote); err != nil {
		return CancelResult{}, err
	}

	penaltyID, err := s.maybePenalize(ctx, tx, appt, outcome.Status, now)
	if err != nil {
		return CancelResult{}, err
	}

	if err := s.emit(ctx, tx, outbox.EventAppointmentCancelled, appt.ID, cancelledPayload{
		AppointmentID: appt.ID,
		PetID:         appt.PetID,
		Status:        string(outcome.Status),
		FeeCents:      outcome.FeeCents,
		CancelledBy:   actor.ID,
	}); err != nil {
		return CancelResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CancelResult{}, err
	}
	s.logger.Info("appointment cancelled",
		"appointment_id", appt.ID,
		"status", outcome.Status,
		"has_fee", outcome.HasFee)

	s.pushPenalty(ctx, penaltyID, appt)
	return CancelResult{
		Status:   outcome.Status,
		HasFee:   outcome.HasFee,
		FeeCents: outcome.FeeCents,
		Message:  outcome.Message,
	}, nil
}

// StatusResult carries the advisory side-effect flags next to the new
// status. A failed record write never fails the transition itself.
type StatusResult struct {
	Status              model.AppointmentStatus
	VaccinationRecorded bool
	MedicalRecorded     bool
	SideEffectError     string
}

// SetStatus moves the appointment through the status machine. Completing a
// vaccination visit creates the vaccination and medical records after
// commit; moving to cancelled_late inside the penalty window records a
// penalty in the same transaction.
func (s *Service) SetStatus(ctx context.Context, appointmentID string, next model.AppointmentStatus, outcome VaccinationOutcome, actor model.Actor) (StatusResult, error) {
	if !actor.Role.Staff() {
		return StatusResult{}, apperr.Forbidden("only staff can change appointment status")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return StatusResult{}, err
	}
	defer tx.Rollback(ctx)

	appt, err := s.repo.GetAppointmentForUpdate(ctx, tx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return StatusResult{}, apperr.NotFound("appointment %s not found", appointmentID)
		}
		return StatusResult{}, err
	}
	if err := validateTransition(appt.Status, next); err != nil {
		return StatusResult{}, err
	}

	now := s.clock()
	if err := s.repo.UpdateAppointmentStatus(ctx, tx, appt.ID, next); err != nil {
		return StatusResult{}, err
	}

	penaltyID, err := s.maybePenalize(ctx, tx, appt, next, now)
	if err != nil {
		return StatusResult{}, err
	}

	if err := s.emit(ctx, tx, outbox.EventAppointmentStatus, appt.ID, statusPayload{
		AppointmentID: appt.ID,
		From:          string(appt.Status),
		To:            string(next),
		ChangedBy:     actor.ID,
	}); err != nil {
		return StatusResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return StatusResult{}, err
	}
	s.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"from", appt.Status,
		"to", next)

	s.pushPenalty(ctx, penaltyID, appt)

	result := StatusResult{Status: next}
	if next == model.StatusCompleted {
		s.recordVisit(ctx, appt, outcome, now, &result)
	}
	return result, nil
}

// recordVisit writes the post-completion records. Each write runs in its
// own short transaction after the status commit: losing a record must not
// roll back a completed visit, so failures are logged and surfaced as
// advisory flags only.
func (s *Service) recordVisit(ctx context.Context, appt model.Appointment, outcome VaccinationOutcome, now time.Time, result *StatusResult) {
	if appt.VaccinationTypeID == "" || outcome == VaccinationNotApplicable {
		return
	}

	note := "scheduled vaccination was not administered"
	if outcome == VaccinationPerformed {
		note = "vaccination administered during appointment"

		_, err := s.repo.CreateVaccinationRecord(ctx, model.VaccinationRecord{
			PetID:             appt.PetID,
			VaccinationTypeID: appt.VaccinationTypeID,
			AdministeredOn:    now,
			Source:            model.RecordSourceAppointment,
		})
		if err != nil {
			s.logger.Error("vaccination record write failed", "appointment_id", appt.ID, "error", err)
			result.SideEffectError = "vaccination record could not be saved"
		} else {
			result.VaccinationRecorded = true
		}
	}

	_, err := s.repo.CreateMedicalRecord(ctx, model.MedicalRecord{
		PetID:         appt.PetID,
		AppointmentID: appt.ID,
		Note:          note,
	})
	if err != nil {
		s.logger.Error("medical record write failed", "appointment_id", appt.ID, "error", err)
		if result.SideEffectError == "" {
			result.SideEffectError = "medical record could not be saved"
		}
	} else {
		result.MedicalRecorded = true
	}
}

// Delete removes an appointment and its billed line items. Staff only;
// clients cancel rather than delete.
func (s *Service) Delete(ctx context.Context, appointmentID string, actor model.Actor) error {
	if !actor.Role.Staff() {
		return apperr.Forbidden("only staff can delete appointments")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.repo.DeleteAppointment(ctx, tx, appointmentID); err != nil {
		if storage.IsNotFound(err) {
			return apperr.NotFound("appointment %s not found", appointmentID)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", appointmentID, "deleted_by", actor.ID)
	return nil
}

// AttachService bills a clinic service against an appointment at the
// service's current price.
func (s *Service) AttachService(ctx context.Context, appointmentID, serviceID string, quantity int, actor model.Actor) (model.ServiceItem, error) {
	if !actor.Role.Staff() {
		return model.ServiceItem{}, apperr.Forbidden("only staff can attach services")
	}
	if quantity <= 0 {
		quantity = 1
	}

	svc, err := s.repo.GetClinicService(ctx, serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.ServiceItem{}, apperr.NotFound("service %s not found", serviceID)
		}
		return model.ServiceItem{}, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.ServiceItem{}, err
	}
	defer tx.Rollback(ctx)

	appt, err := s.repo.GetAppointmentForUpdate(ctx, tx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.ServiceItem{}, apperr.NotFound("appointment %s not found", appointmentID)
		}
		return model.ServiceItem{}, err
	}
	if appt.Status.Cancelled() {
		return model.ServiceItem{}, apperr.Validation("cannot bill services against a cancelled appointment")
	}

	item := model.ServiceItem{
		AppointmentID: appt.ID,
		ServiceID:     svc.ID,
		Quantity:      quantity,
		PriceCents:    svc.PriceCents,
	}
	id, err := s.repo.AttachServiceItem(ctx, tx, item)
	if err != nil {
		return model.ServiceItem{}, err
	}
	item.ID = id

	if err := tx.Commit(ctx); err != nil {
		return model.ServiceItem{}, err
	}
	return item, nil
}

// Get loads one appointment with the caller's visibility check applied.
func (s *Service) Get(ctx context.Context, appointmentID string, actor model.Actor) (model.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("appointment %s not found", appointmentID)
		}
		return model.Appointment{}, err
	}
	if err := s.authorize(ctx, appt, actor); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// ListForPet returns a pet's appointment history, newest first.
func (s *Service) ListForPet(ctx context.Context, petID string, actor model.Actor) ([]model.Appointment, error) {
	pet, err := s.repo.GetPet(ctx, petID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperr.NotFound("pet %s not found", petID)
		}
		return nil, err
	}
	if !actor.Role.Staff() && pet.OwnerID != actor.ID {
		return nil, apperr.Forbidden("pet %s does not belong to you", petID)
	}
	return s.repo.ListAppointmentsForPet(ctx, petID, 100)
}

// authorize allows staff always and the pet's owner otherwise.
func (s *Service) authorize(ctx context.Context, appt model.Appointment, actor model.Actor) error {
	if actor.Role.Staff() {
		return nil
	}
	pet, err := s.repo.GetPet(ctx, appt.PetID)
	if err != nil {
		return err
	}
	if pet.OwnerID != actor.ID {
		return apperr.Forbidden("appointment %s does not belong to you", appt.ID)
	}
	return nil
}

// maybePenalize records the independent late-cancellation penalty when the
// appointment lands in cancelled_late inside the penalty window. The
// ledger write shares the caller's transaction; the Stripe push happens
// after commit.
func (s *Service) maybePenalize(ctx context.Context, tx pgx.Tx, appt model.Appointment, next model.AppointmentStatus, now time.Time) (string, error) {
	if next != model.StatusCancelledLate || !policy.PenaltyDue(appt.ScheduledAt, now) {
		return "", nil
	}
	pet, err := s.repo.GetPet(ctx, appt.PetID)
	if err != nil {
		return "", err
	}
	return s.billing.RecordPenalty(ctx, tx, appt, pet.OwnerID, policy.LateCancellationFeeCents, "late cancellation")
}

func (s *Service) pushPenalty(ctx context.Context, penaltyID string, appt model.Appointment) {
	if penaltyID == "" {
		return
	}
	pet, err := s.repo.GetPet(ctx, appt.PetID)
	if err != nil {
		s.logger.Error("penalty push skipped: pet lookup failed", "appointment_id", appt.ID, "error", err)
		return
	}
	s.billing.PushToStripe(ctx, penaltyID, pet.OwnerID, policy.LateCancellationFeeCents,
		"Late cancellation fee for appointment on "+appt.ScheduledAt.Format("2006-01-02 15:04"))
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

type bookedPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	PractitionerID string    `json:"practitioner_id"`
	PetID          string    `json:"pet_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Status         string    `json:"status"`
}

type cancelledPayload struct {
	AppointmentID string `json:"appointment_id"`
	PetID         string `json:"pet_id"`
	Status        string `json:"status"`
	FeeCents      int64  `json:"fee_cents,omitempty"`
	CancelledBy   string `json:"cancelled_by"`
}

type statusPayload struct {
	AppointmentID string `json:"appointment_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	ChangedBy     string `json:"changed_by"`
}
