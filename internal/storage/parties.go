package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/model"
)

func (r *Repository) GetPractitioner(ctx context.Context, id string) (model.Practitioner, error) {
	var p model.Practitioner
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, role, is_active
		FROM practitioners
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &role, &p.IsActive)
	p.Role = model.Role(role)
	return p, err
}

func (r *Repository) ListActivePractitioners(ctx context.Context) ([]model.Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, role, is_active
		FROM practitioners
		WHERE is_active AND role = 'practitioner'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Practitioner
	for rows.Next() {
		var p model.Practitioner
		var role string
		if err := rows.Scan(&p.ID, &p.Name, &role, &p.IsActive); err != nil {
			return nil, err
		}
		p.Role = model.Role(role)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetPet(ctx context.Context, id string) (model.Pet, error) {
	var p model.Pet
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, owner_id::text, name
		FROM pets
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Name)
	return p, err
}

// GetClient loads an owner's billing profile; the stripe customer id may be
// empty when no card is on file.
func (r *Repository) GetClient(ctx context.Context, id string) (model.Client, error) {
	var c model.Client
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(email, ''), COALESCE(stripe_customer_id, '')
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.StripeCustomerID)
	return c, err
}

func (r *Repository) GetVaccinationType(ctx context.Context, id string) (model.VaccinationType, error) {
	var vt model.VaccinationType
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name
		FROM vaccination_types
		WHERE id = $1
	`, id).Scan(&vt.ID, &vt.Name)
	return vt, err
}

func (r *Repository) GetClinicService(ctx context.Context, id string) (model.ClinicService, error) {
	var s model.ClinicService
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, price_cents, duration_minutes
		FROM clinic_services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.PriceCents, &s.DurationMinutes)
	return s, err
}

// PractitionerExists is a cheap existence probe used by admin validation
// paths that do not need the full row.
func (r *Repository) PractitionerExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM practitioners WHERE id = $1)
	`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return exists, err
}
