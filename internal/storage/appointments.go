package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/model"
)

const appointmentColumns = `
	id::text, practitioner_id::text, pet_id::text, scheduled_at,
	duration_minutes, status, COALESCE(vaccination_type_id::text, ''),
	COALESCE(reason, ''), late_cancellation_fee_cents, fee_paid,
	COALESCE(fee_note, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PetID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&status,
		&a.VaccinationTypeID,
		&a.Reason,
		&a.FeeCents,
		&a.FeePaid,
		&a.FeeNote,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	a.Status = model.AppointmentStatus(status)
	return a, err
}

func (r *Repository) CreateAppointment(ctx context.Context, tx pgx.Tx, a *model.Appointment) (string, error) {
	id := uuid.NewString()
	var vaccinationType *string
	if a.VaccinationTypeID != "" {
		vaccinationType = &a.VaccinationTypeID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, practitioner_id, pet_id, scheduled_at, duration_minutes, status, vaccination_type_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, a.PractitionerID, a.PetID, a.ScheduledAt, a.DurationMinutes, string(a.Status), vaccinationType, a.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

// GetAppointmentForUpdate row-locks the appointment for the rest of the
// transaction; every mutating flow loads through here.
func (r *Repository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

// ListForConflict returns the practitioner's non-cancelled appointments
// whose intervals reach into [from, to). Run inside the same transaction
// as the write so the check and the write are one atomic step.
func (r *Repository) ListForConflict(ctx context.Context, tx pgx.Tx, practitionerID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
			AND status NOT IN ('cancelled', 'cancelled_late')
			AND scheduled_at < $3
			AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListBookedStarts returns start times of the practitioner's non-cancelled
// appointments on [dayStart, dayEnd): the slot grid only needs exact
// starts.
func (r *Repository) ListBookedStarts(ctx context.Context, practitionerID string, dayStart, dayEnd time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE practitioner_id = $1
			AND status NOT IN ('cancelled', 'cancelled_late')
			AND scheduled_at >= $2
			AND scheduled_at < $3
	`, practitionerID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	return starts, rows.Err()
}

func (r *Repository) ListAppointmentsForPet(ctx context.Context, petID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE pet_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2
	`, petID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, id string, status model.AppointmentStatus) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, string(status))
	return err
}

// ApplyCancellation writes the cancellation status and, for the fee-bearing
// tier, the fee fields in the same statement.
func (r *Repository) ApplyCancellation(ctx context.Context, tx pgx.Tx, id string, status model.AppointmentStatus, feeCents *int64, feeNote string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			late_cancellation_fee_cents = $3,
			fee_paid = CASE WHEN $3::bigint IS NULL THEN fee_paid ELSE false END,
			fee_note = NULLIF($4, ''),
			updated_at = now()
		WHERE id = $1
	`, id, string(status), feeCents, feeNote)
	return err
}

// Reschedule moves the appointment and optionally reassigns the
// practitioner.
func (r *Repository) Reschedule(ctx context.Context, tx pgx.Tx, id string, newAt time.Time, newPractitionerID string) error {
	if newPractitionerID == "" {
		_, err := tx.Exec(ctx, `
			UPDATE appointments
			SET scheduled_at = $2, updated_at = now()
			WHERE id = $1
		`, id, newAt)
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_at = $2, practitioner_id = $3, updated_at = now()
		WHERE id = $1
	`, id, newAt, newPractitionerID)
	return err
}

// DeleteAppointment hard-deletes the appointment and its attached line
// items. Staff-only; enforced by the caller.
func (r *Repository) DeleteAppointment(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM service_items WHERE appointment_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
