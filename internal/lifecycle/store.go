package lifecycle

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/outbox"
)

// Store is the slice of the storage layer the lifecycle service depends
// on. *storage.Repository satisfies it; tests substitute an in-memory
// fake.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	ListForConflict(ctx context.Context, tx pgx.Tx, practitionerID string, from, to time.Time) ([]model.Appointment, error)
	ListAppointmentsForPet(ctx context.Context, petID string, limit int) ([]model.Appointment, error)
	CreateAppointment(ctx context.Context, tx pgx.Tx, a *model.Appointment) (string, error)
	UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, id string, status model.AppointmentStatus) error
	ApplyCancellation(ctx context.Context, tx pgx.Tx, id string, status model.AppointmentStatus, feeCents *int64, feeNote string) error
	DeleteAppointment(ctx context.Context, tx pgx.Tx, id string) error
	GetPractitioner(ctx context.Context, id string) (model.Practitioner, error)
	GetPet(ctx context.Context, id string) (model.Pet, error)
	GetVaccinationType(ctx context.Context, id string) (model.VaccinationType, error)
	GetClinicService(ctx context.Context, id string) (model.ClinicService, error)
	CreateVaccinationRecord(ctx context.Context, rec model.VaccinationRecord) (string, error)
	CreateMedicalRecord(ctx context.Context, rec model.MedicalRecord) (string, error)
	AttachServiceItem(ctx context.Context, tx pgx.Tx, item model.ServiceItem) (string, error)
}

// EventStore inserts outbox events in the caller's transaction.
type EventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Biller records penalty ledger entries in the primary transaction and
// pushes them to the payment provider after commit.
type Biller interface {
	RecordPenalty(ctx context.Context, tx pgx.Tx, appt model.Appointment, clientID string, amountCents int64, reason string) (string, error)
	PushToStripe(ctx context.Context, penaltyID, clientID string, amountCents int64, description string)
}
