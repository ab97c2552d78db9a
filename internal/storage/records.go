package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/model"
)

// Record inserts run in their own short transactions, outside the status
// write: a failed record must never roll back the primary transition, it
// is reported back as an advisory flag instead.

func (r *Repository) CreateVaccinationRecord(ctx context.Context, rec model.VaccinationRecord) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO vaccination_records (id, pet_id, vaccination_type_id, administered_on, source)
		VALUES ($1, $2, $3, $4, $5)
	`, id, rec.PetID, rec.VaccinationTypeID, rec.AdministeredOn, rec.Source)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) CreateMedicalRecord(ctx context.Context, rec model.MedicalRecord) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO medical_records (id, pet_id, appointment_id, note)
		VALUES ($1, $2, $3, $4)
	`, id, rec.PetID, rec.AppointmentID, rec.Note)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreatePenalty writes a late-cancellation ledger entry inside the primary
// transaction.
func (r *Repository) CreatePenalty(ctx context.Context, tx pgx.Tx, p model.Penalty) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO penalties (id, appointment_id, client_id, amount_cents, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, p.AppointmentID, p.ClientID, p.AmountCents, p.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AttachServiceItem adds a billed line item to an appointment.
func (r *Repository) AttachServiceItem(ctx context.Context, tx pgx.Tx, item model.ServiceItem) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO service_items (id, appointment_id, service_id, quantity, price_cents)
		VALUES ($1, $2, $3, $4, $5)
	`, id, item.AppointmentID, item.ServiceID, item.Quantity, item.PriceCents)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServiceItems(ctx context.Context, appointmentID string) ([]model.ServiceItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, appointment_id::text, service_id::text, quantity, price_cents
		FROM service_items
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ServiceItem
	for rows.Next() {
		var item model.ServiceItem
		if err := rows.Scan(&item.ID, &item.AppointmentID, &item.ServiceID, &item.Quantity, &item.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
