package reschedule

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/outbox"
)

// Store is the slice of the storage layer the reschedule workflow depends
// on. *storage.Repository satisfies it; tests substitute an in-memory
// fake.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	GetPractitioner(ctx context.Context, id string) (model.Practitioner, error)
	GetPet(ctx context.Context, id string) (model.Pet, error)
	ListForConflict(ctx context.Context, tx pgx.Tx, practitionerID string, from, to time.Time) ([]model.Appointment, error)
	Reschedule(ctx context.Context, tx pgx.Tx, id string, newAt time.Time, newPractitionerID string) error
	CreateRescheduleRequest(ctx context.Context, tx pgx.Tx, rr *model.RescheduleRequest) (string, error)
	GetRescheduleRequestForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.RescheduleRequest, error)
	GetPendingRequestForAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (*model.RescheduleRequest, error)
	ResolveRescheduleRequest(ctx context.Context, tx pgx.Tx, id string, status model.RescheduleStatus, reviewerID, reason string, at time.Time) error
	ListRescheduleRequests(ctx context.Context, appointmentID string) ([]model.RescheduleRequest, error)
}

// EventStore inserts outbox events in the caller's transaction.
type EventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}
