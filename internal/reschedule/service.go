// Package reschedule implements the two-step reschedule workflow: a client
// request reviewed by staff, plus the staff-initiated forced move that
// bypasses review for clinic-driven changes.
package reschedule

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/apperr"
	"github.com/vetsuite/vetsuite/internal/conflict"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/outbox"
	"github.com/vetsuite/vetsuite/internal/policy"
	"github.com/vetsuite/vetsuite/internal/storage"
)

// ForcedMinDistance is how far a staff-forced move must land from the
// original time, in either direction. Anything closer goes through the
// normal request/approve flow instead.
const ForcedMinDistance = 7 * 24 * time.Hour

// forcedDistanceOK compares original and proposed times symmetrically;
// exactly seven days is allowed.
func forcedDistanceOK(original, proposed time.Time) bool {
	d := proposed.Sub(original)
	if d < 0 {
		d = -d
	}
	return d >= ForcedMinDistance
}

type Service struct {
	repo   Store
	outbox EventStore
	logger *slog.Logger
	clock  func() time.Time
}

func NewService(repo Store, outboxRepo EventStore, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		outbox: outboxRepo,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Request files a pending reschedule request. At most one pending request
// may exist per appointment; the partial unique index backs this up under
// concurrent submissions.
func (s *Service) Request(ctx context.Context, appointmentID string, newAt time.Time, note string, actor model.Actor) (model.RescheduleRequest, error) {
	now := s.clock()
	if !newAt.After(now) {
		return model.RescheduleRequest{}, apperr.Validation("the new time must be in the future")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.RescheduleRequest{}, err
	}
	defer tx.Rollback(ctx)

	appt, err := s.repo.GetAppointmentForUpdate(ctx, tx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.RescheduleRequest{}, apperr.NotFound("appointment %s not found", appointmentID)
		}
		return model.RescheduleRequest{}, err
	}
	if err := s.authorize(ctx, appt, actor); err != nil {
		return model.RescheduleRequest{}, err
	}
	if appt.Status.Terminal() {
		return model.RescheduleRequest{}, apperr.Validation("appointment is %s and cannot be rescheduled", appt.Status)
	}

	check := policy.CanReschedule(appt.ScheduledAt, now)
	if !check.CanReschedule {
		return model.RescheduleRequest{}, apperr.Validation("%s", check.Message)
	}

	pending, err := s.repo.GetPendingRequestForAppointment(ctx, tx, appointmentID)
	if err != nil {
		return model.RescheduleRequest{}, err
	}
	if pending != nil {
		return model.RescheduleRequest{}, apperr.Conflict("a pending reschedule request already exists for this appointment")
	}

	rr := model.RescheduleRequest{
		AppointmentID:  appt.ID,
		OldScheduledAt: appt.ScheduledAt,
		NewScheduledAt: newAt.UTC(),
		RequestedBy:    actor.ID,
		Note:           note,
		Status:         model.ReschedulePending,
	}
	id, err := s.repo.CreateRescheduleRequest(ctx, tx, &rr)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.RescheduleRequest{}, apperr.Conflict("a pending reschedule request already exists for this appointment")
		}
		return model.RescheduleRequest{}, err
	}
	rr.ID = id

	if err := s.emit(ctx, tx, outbox.EventRescheduleRequested, rr.ID, requestPayload{
		RequestID:     rr.ID,
		AppointmentID: appt.ID,
		OldAt:         rr.OldScheduledAt,
		NewAt:         rr.NewScheduledAt,
		RequestedBy:   actor.ID,
	}); err != nil {
		return model.RescheduleRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.RescheduleRequest{}, err
	}
	s.logger.Info("reschedule requested", "request_id", rr.ID, "appointment_id", appt.ID)
	return rr, nil
}

// Approve moves the appointment to the requested time. The target slot is
// conflict-checked again inside this transaction; approving a request does
// not trust the availability seen when it was filed.
func (s *Service) Approve(ctx context.Context, requestID string, actor model.Actor) (model.RescheduleRequest, error) {
	if !actor.Role.Staff() {
		return model.RescheduleRequest{}, apperr.Forbidden("only staff can review reschedule requests")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.RescheduleRequest{}, err
	}
	defer tx.Rollback(ctx)

	rr, err := s.repo.GetRescheduleRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.RescheduleRequest{}, apperr.NotFound("reschedule request %s not found", requestID)
		}
		return model.RescheduleRequest{}, err
	}
	if rr.Status != model.ReschedulePending {
		return model.RescheduleRequest{}, apperr.Validation("reschedule request is already %s", rr.Status)
	}

	appt, err := s.repo.GetAppointmentForUpdate(ctx, tx, rr.AppointmentID)
	if err != nil {
		return model.RescheduleRequest{}, err
	}
	if appt.Status.Terminal() {
		return model.RescheduleRequest{}, apperr.Validation("appointment is %s and can no longer move", appt.Status)
	}

	if err := s.ensureFree(ctx, tx, appt.PractitionerID, appt.ID, rr.NewScheduledAt, appt.DurationMinutes); err != nil {
		return model.RescheduleRequest{}, err
	}

	now := s.clock()
	if err := s.repo.Reschedule(ctx, tx, appt.ID, rr.NewScheduledAt, ""); err != nil {
		return model.RescheduleRequest{}, err
	}
	if err := s.repo.ResolveRescheduleRequest(ctx, tx, rr.ID, model.RescheduleApproved, actor.ID, "", now); err != nil {
		return model.RescheduleRequest{}, err
	}

	if err := s.emitMoved(ctx, tx, appt, rr.NewScheduledAt, appt.PractitionerID, actor.ID, "request approved"); err != nil {
		return model.RescheduleRequest{}, err
	}
	if err := s.emitResolved(ctx, tx, rr, model.RescheduleApproved, actor.ID, ""); err != nil {
		return model.RescheduleRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.RescheduleRequest{}, err
	}
	s.logger.Info("reschedule approved", "request_id", rr.ID, "appointment_id", appt.ID, "new_at", rr.NewScheduledAt)

	rr.Status = model.RescheduleApproved
	rr.ReviewedBy = actor.ID
	rr.ReviewedAt = &now
	return rr, nil
}

// Reject closes a pending request without touching the appointment.
func (s *Service) Reject(ctx context.Context, requestID, reason string, actor model.Actor) (model.RescheduleRequest, error) {
	if !actor.Role.Staff() {
		return model.RescheduleRequest{}, apperr.Forbidden("only staff can review reschedule requests")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.RescheduleRequest{}, err
	}
	defer tx.Rollback(ctx)

	rr, err := s.repo.GetRescheduleRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.RescheduleRequest{}, apperr.NotFound("reschedule request %s not found", requestID)
		}
		return model.RescheduleRequest{}, err
	}
	if rr.Status != model.ReschedulePending {
		return model.RescheduleRequest{}, apperr.Validation("reschedule request is already %s", rr.Status)
	}

	now := s.clock()
	if err := s.repo.ResolveRescheduleRequest(ctx, tx, rr.ID, model.RescheduleRejected, actor.ID, reason, now); err != nil {
		return model.RescheduleRequest{}, err
	}
	if err := s.emitResolved(ctx, tx, rr, model.RescheduleRejected, actor.ID, reason); err != nil {
		return model.RescheduleRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.RescheduleRequest{}, err
	}
	s.logger.Info("reschedule rejected", "request_id", rr.ID, "appointment_id", rr.AppointmentID)

	rr.Status = model.RescheduleRejected
	rr.ReviewedBy = actor.ID
	rr.ReviewedAt = &now
	rr.RejectionReason = reason
	return rr, nil
}

// ForceParams describes a staff-initiated move.
type ForceParams struct {
	AppointmentID     string
	NewScheduledAt    time.Time
	NewPractitionerID string // optional reassignment
	Reason            string
}

// Force moves an appointment without client consent, for clinic-driven
// changes such as a practitioner leaving. The new time must sit at least
// seven whole days from the original; a still-pending client request is
// closed with an audit note so it cannot be approved against the moved
// appointment later.
func (s *Service) Force(ctx context.Context, p ForceParams, actor model.Actor) (model.Appointment, error) {
	if !actor.Role.Staff() {
		return model.Appointment{}, apperr.Forbidden("only staff can force a reschedule")
	}
	now := s.clock()
	if !p.NewScheduledAt.After(now) {
		return model.Appointment{}, apperr.Validation("the new time must be in the future")
	}

	if p.NewPractitionerID != "" {
		practitioner, err := s.repo.GetPractitioner(ctx, p.NewPractitionerID)
		if err != nil {
			if storage.IsNotFound(err) {
				return model.Appointment{}, apperr.NotFound("practitioner %s not found", p.NewPractitionerID)
			}
			return model.Appointment{}, err
		}
		if practitioner.Role != model.RolePractitioner {
			return model.Appointment{}, apperr.Validation("%s does not hold the practitioner role", practitioner.Name)
		}
		if !practitioner.IsActive {
			return model.Appointment{}, apperr.Validation("practitioner %s is not accepting appointments", practitioner.Name)
		}
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer tx.Rollback(ctx)

	appt, err := s.repo.GetAppointmentForUpdate(ctx, tx, p.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("appointment %s not found", p.AppointmentID)
		}
		return model.Appointment{}, err
	}
	if appt.Status.Terminal() {
		return model.Appointment{}, apperr.Validation("appointment is %s and cannot be rescheduled", appt.Status)
	}
	if !forcedDistanceOK(appt.ScheduledAt, p.NewScheduledAt) {
		return model.Appointment{}, apperr.Validation("a forced reschedule must land at least 7 days from the original time")
	}

	targetPractitioner := appt.PractitionerID
	if p.NewPractitionerID != "" {
		targetPractitioner = p.NewPractitionerID
	}
	if err := s.ensureFree(ctx, tx, targetPractitioner, appt.ID, p.NewScheduledAt, appt.DurationMinutes); err != nil {
		return model.Appointment{}, err
	}

	if err := s.repo.Reschedule(ctx, tx, appt.ID, p.NewScheduledAt, p.NewPractitionerID); err != nil {
		return model.Appointment{}, err
	}

	// A client request filed against the old time is meaningless now.
	pending, err := s.repo.GetPendingRequestForAppointment(ctx, tx, appt.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if pending != nil {
		if err := s.repo.ResolveRescheduleRequest(ctx, tx, pending.ID, model.RescheduleCancelled, actor.ID,
			"superseded by staff reschedule", now); err != nil {
			return model.Appointment{}, err
		}
		if err := s.emitResolved(ctx, tx, *pending, model.RescheduleCancelled, actor.ID, "superseded by staff reschedule"); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := s.emitMoved(ctx, tx, appt, p.NewScheduledAt, targetPractitioner, actor.ID, p.Reason); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment force-rescheduled",
		"appointment_id", appt.ID,
		"new_at", p.NewScheduledAt,
		"practitioner_id", targetPractitioner)

	appt.ScheduledAt = p.NewScheduledAt.UTC()
	appt.PractitionerID = targetPractitioner
	return appt, nil
}

// List returns the request history for one appointment, newest first.
func (s *Service) List(ctx context.Context, appointmentID string, actor model.Actor) ([]model.RescheduleRequest, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperr.NotFound("appointment %s not found", appointmentID)
		}
		return nil, err
	}
	if err := s.authorize(ctx, appt, actor); err != nil {
		return nil, err
	}
	return s.repo.ListRescheduleRequests(ctx, appointmentID)
}

func (s *Service) ensureFree(ctx context.Context, tx pgx.Tx, practitionerID, excludeID string, start time.Time, durationMinutes int) error {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	existing, err := s.repo.ListForConflict(ctx, tx, practitionerID, start, end)
	if err != nil {
		return err
	}
	if conflict.Overlaps(existing, start, durationMinutes, excludeID) {
		return apperr.Conflict("the practitioner already has an appointment in this time range")
	}
	return nil
}

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

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "reschedule_request",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

func (s *Service) emitMoved(ctx context.Context, tx pgx.Tx, appt model.Appointment, newAt time.Time, practitionerID, movedBy, reason string) error {
	body, err := json.Marshal(movedPayload{
		AppointmentID:  appt.ID,
		PetID:          appt.PetID,
		OldAt:          appt.ScheduledAt,
		NewAt:          newAt,
		PractitionerID: practitionerID,
		MovedBy:        movedBy,
		Reason:         reason,
	})
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentRescheduled,
		Payload:       body,
	})
}

func (s *Service) emitResolved(ctx context.Context, tx pgx.Tx, rr model.RescheduleRequest, status model.RescheduleStatus, reviewerID, reason string) error {
	return s.emit(ctx, tx, outbox.EventRescheduleResolved, rr.ID, resolvedPayload{
		RequestID:     rr.ID,
		AppointmentID: rr.AppointmentID,
		Status:        string(status),
		ReviewedBy:    reviewerID,
		Reason:        reason,
	})
}

type requestPayload struct {
	RequestID     string    `json:"request_id"`
	AppointmentID string    `json:"appointment_id"`
	OldAt         time.Time `json:"old_scheduled_at"`
	NewAt         time.Time `json:"new_scheduled_at"`
	RequestedBy   string    `json:"requested_by"`
}

type resolvedPayload struct {
	RequestID     string `json:"request_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	ReviewedBy    string `json:"reviewed_by"`
	Reason        string `json:"reason,omitempty"`
}

type movedPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	PetID          string    `json:"pet_id"`
	OldAt          time.Time `json:"old_scheduled_at"`
	NewAt          time.Time `json:"new_scheduled_at"`
	PractitionerID string    `json:"practitioner_id"`
	MovedBy        string    `json:"moved_by"`
	Reason         string    `json:"reason,omitempty"`
}
