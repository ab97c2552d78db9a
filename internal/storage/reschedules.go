package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/model"
)

const rescheduleColumns = `
	id::text, appointment_id::text, old_scheduled_at, new_scheduled_at,
	requested_by::text, COALESCE(note, ''), status, COALESCE(reviewed_by::text, ''),
	reviewed_at, COALESCE(rejection_reason, ''), created_at`

func scanRescheduleRequest(row pgx.Row) (model.RescheduleRequest, error) {
	var rr model.RescheduleRequest
	var status string
	err := row.Scan(
		&rr.ID,
		&rr.AppointmentID,
		&rr.OldScheduledAt,
		&rr.NewScheduledAt,
		&rr.RequestedBy,
		&rr.Note,
		&status,
		&rr.ReviewedBy,
		&rr.ReviewedAt,
		&rr.RejectionReason,
		&rr.CreatedAt,
	)
	rr.Status = model.RescheduleStatus(status)
	return rr, err
}

// CreateRescheduleRequest inserts a pending request. The partial unique
// index on (appointment_id) WHERE status = 'pending' backs the
// one-pending-per-appointment invariant under races.
func (r *Repository) CreateRescheduleRequest(ctx context.Context, tx pgx.Tx, rr *model.RescheduleRequest) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO reschedule_requests
			(id, appointment_id, old_scheduled_at, new_scheduled_at, requested_by, note, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), 'pending')
	`, id, rr.AppointmentID, rr.OldScheduledAt, rr.NewScheduledAt, rr.RequestedBy, rr.Note)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetRescheduleRequestForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.RescheduleRequest, error) {
	return scanRescheduleRequest(tx.QueryRow(ctx, `
		SELECT `+rescheduleColumns+`
		FROM reschedule_requests
		WHERE id = $1
		FOR UPDATE
	`, id))
}

// GetPendingRequestForAppointment returns the pending request, if any,
// locking it when found.
func (r *Repository) GetPendingRequestForAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (*model.RescheduleRequest, error) {
	rr, err := scanRescheduleRequest(tx.QueryRow(ctx, `
		SELECT `+rescheduleColumns+`
		FROM reschedule_requests
		WHERE appointment_id = $1 AND status = 'pending'
		FOR UPDATE
	`, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

// ResolveRescheduleRequest closes a request with a reviewer decision.
func (r *Repository) ResolveRescheduleRequest(ctx context.Context, tx pgx.Tx, id string, status model.RescheduleStatus, reviewerID, reason string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE reschedule_requests
		SET status = $2,
			reviewed_by = NULLIF($3, '')::uuid,
			reviewed_at = $4,
			rejection_reason = NULLIF($5, '')
		WHERE id = $1
	`, id, string(status), reviewerID, at, reason)
	return err
}

func (r *Repository) ListRescheduleRequests(ctx context.Context, appointmentID string) ([]model.RescheduleRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+rescheduleColumns+`
		FROM reschedule_requests
		WHERE appointment_id = $1
		ORDER BY created_at DESC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RescheduleRequest
	for rows.Next() {
		rr, err := scanRescheduleRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}
