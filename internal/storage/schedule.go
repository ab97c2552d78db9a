package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/model"
)

// GetWorkingHours returns the practitioner's default hours for one weekday,
// or nil when none are configured.
func (r *Repository) GetWorkingHours(ctx context.Context, practitionerID string, weekday time.Weekday) (*model.WorkingHours, error) {
	var wh model.WorkingHours
	var wd int
	err := r.pool.QueryRow(ctx, `
		SELECT practitioner_id::text, weekday, is_working, start_minute, end_minute
		FROM working_hours
		WHERE practitioner_id = $1 AND weekday = $2
	`, practitionerID, int(weekday)).Scan(&wh.PractitionerID, &wd, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	wh.Weekday = time.Weekday(wd)
	return &wh, nil
}

func (r *Repository) ListWorkingHours(ctx context.Context, practitionerID string) ([]model.WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT practitioner_id::text, weekday, is_working, start_minute, end_minute
		FROM working_hours
		WHERE practitioner_id = $1
		ORDER BY weekday
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkingHours
	for rows.Next() {
		var wh model.WorkingHours
		var wd int
		if err := rows.Scan(&wh.PractitionerID, &wd, &wh.IsWorking, &wh.StartMinute, &wh.EndMinute); err != nil {
			return nil, err
		}
		wh.Weekday = time.Weekday(wd)
		out = append(out, wh)
	}
	return out, rows.Err()
}

func (r *Repository) UpsertWorkingHours(ctx context.Context, wh model.WorkingHours) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM practitioners WHERE id = $1)
	`, wh.PractitionerID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO working_hours (practitioner_id, weekday, is_working, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (practitioner_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute
	`, wh.PractitionerID, int(wh.Weekday), wh.IsWorking, wh.StartMinute, wh.EndMinute)
	return err
}

// GetApprovedOverride returns the approved override for the exact date, or
// nil. Pending and rejected proposals never influence availability.
func (r *Repository) GetApprovedOverride(ctx context.Context, practitionerID string, date time.Time) (*model.ScheduleOverride, error) {
	ov, err := r.getOverride(ctx, practitionerID, date, model.OverrideApproved)
	if err != nil || ov == nil {
		return nil, err
	}
	return ov, nil
}

func (r *Repository) getOverride(ctx context.Context, practitionerID string, date time.Time, status model.OverrideStatus) (*model.ScheduleOverride, error) {
	var ov model.ScheduleOverride
	var st string
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, practitioner_id::text, date, start_minute, end_minute, status
		FROM schedule_overrides
		WHERE practitioner_id = $1 AND date = $2 AND status = $3
	`, practitionerID, date, string(status)).Scan(&ov.ID, &ov.PractitionerID, &ov.Date, &ov.StartMinute, &ov.EndMinute, &st)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ov.Status = model.OverrideStatus(st)
	return &ov, nil
}

// ProposeOverride records a pending override; approval arrives later via
// the event consumer.
func (r *Repository) ProposeOverride(ctx context.Context, ov model.ScheduleOverride) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_overrides (id, practitioner_id, date, start_minute, end_minute, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, id, ov.PractitionerID, ov.Date, ov.StartMinute, ov.EndMinute)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ResolveOverride applies an externally-made approval decision.
func (r *Repository) ResolveOverride(ctx context.Context, overrideID string, status model.OverrideStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedule_overrides
		SET status = $2
		WHERE id = $1 AND status = 'pending'
	`, overrideID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListOverrides(ctx context.Context, practitionerID string, from, to time.Time) ([]model.ScheduleOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, practitioner_id::text, date, start_minute, end_minute, status
		FROM schedule_overrides
		WHERE practitioner_id = $1 AND date >= $2 AND date < $3
		ORDER BY date
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduleOverride
	for rows.Next() {
		var ov model.ScheduleOverride
		var st string
		if err := rows.Scan(&ov.ID, &ov.PractitionerID, &ov.Date, &ov.StartMinute, &ov.EndMinute, &st); err != nil {
			return nil, err
		}
		ov.Status = model.OverrideStatus(st)
		out = append(out, ov)
	}
	return out, rows.Err()
}
