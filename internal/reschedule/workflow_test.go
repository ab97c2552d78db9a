package reschedule

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/internal/apperr"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/outbox"
)

// fakeTx satisfies pgx.Tx for service tests; only the transaction
// boundary methods are exercised.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	appointments  map[string]model.Appointment
	practitioners map[string]model.Practitioner
	pets          map[string]model.Pet
	requests      map[string]model.RescheduleRequest
	nextID        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appointments:  map[string]model.Appointment{},
		practitioners: map[string]model.Practitioner{},
		pets:          map[string]model.Pet{},
		requests:      map[string]model.RescheduleRequest{},
	}
}

func (f *fakeStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := f.appointments[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appt, nil
}

func (f *fakeStore) GetAppointmentForUpdate(ctx context.Context, _ pgx.Tx, id string) (model.Appointment, error) {
	return f.GetAppointment(ctx, id)
}

func (f *fakeStore) GetPractitioner(_ context.Context, id string) (model.Practitioner, error) {
	p, ok := f.practitioners[id]
	if !ok {
		return model.Practitioner{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetPet(_ context.Context, id string) (model.Pet, error) {
	p, ok := f.pets[id]
	if !ok {
		return model.Pet{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) ListForConflict(_ context.Context, _ pgx.Tx, practitionerID string, _, _ time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.PractitionerID == practitionerID && !a.Status.Cancelled() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) Reschedule(_ context.Context, _ pgx.Tx, id string, newAt time.Time, newPractitionerID string) error {
	appt := f.appointments[id]
	appt.ScheduledAt = newAt.UTC()
	if newPractitionerID != "" {
		appt.PractitionerID = newPractitionerID
	}
	f.appointments[id] = appt
	return nil
}

func (f *fakeStore) CreateRescheduleRequest(_ context.Context, _ pgx.Tx, rr *model.RescheduleRequest) (string, error) {
	f.nextID++
	id := fmt.Sprintf("rr-%d", f.nextID)
	stored := *rr
	stored.ID = id
	f.requests[id] = stored
	return id, nil
}

func (f *fakeStore) GetRescheduleRequestForUpdate(_ context.Context, _ pgx.Tx, id string) (model.RescheduleRequest, error) {
	rr, ok := f.requests[id]
	if !ok {
		return model.RescheduleRequest{}, pgx.ErrNoRows
	}
	return rr, nil
}

func (f *fakeStore) GetPendingRequestForAppointment(_ context.Context, _ pgx.Tx, appointmentID string) (*model.RescheduleRequest, error) {
	for _, rr := range f.requests {
		if rr.AppointmentID == appointmentID && rr.Status == model.ReschedulePending {
			found := rr
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ResolveRescheduleRequest(_ context.Context, _ pgx.Tx, id string, status model.RescheduleStatus, reviewerID, reason string, at time.Time) error {
	rr, ok := f.requests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	rr.Status = status
	rr.ReviewedBy = reviewerID
	rr.RejectionReason = reason
	rr.ReviewedAt = &at
	f.requests[id] = rr
	return nil
}

func (f *fakeStore) ListRescheduleRequests(_ context.Context, appointmentID string) ([]model.RescheduleRequest, error) {
	var out []model.RescheduleRequest
	for _, rr := range f.requests {
		if rr.AppointmentID == appointmentID {
			out = append(out, rr)
		}
	}
	return out, nil
}

type fakeEvents struct {
	events []outbox.Event
}

func (f *fakeEvents) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func newTestService(store *fakeStore, now time.Time) *Service {
	return NewService(store, &fakeEvents{}, slog.New(slog.DiscardHandler)).
		WithClock(func() time.Time { return now })
}

func TestRequest_SinglePendingPerAppointment(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	scheduled := now.Add(100 * time.Hour)
	store := newFakeStore()
	store.pets["pet-1"] = model.Pet{ID: "pet-1", OwnerID: "client-1", Name: "Rex"}
	store.appointments["appt-1"] = model.Appointment{
		ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
		ScheduledAt: scheduled, DurationMinutes: 45, Status: model.StatusConfirmed,
	}
	store.requests["rr-1"] = model.RescheduleRequest{
		ID: "rr-1", AppointmentID: "appt-1",
		OldScheduledAt: scheduled, NewScheduledAt: scheduled.Add(24 * time.Hour),
		RequestedBy: "client-1", Status: model.ReschedulePending,
	}

	svc := newTestService(store, now)
	owner := model.Actor{ID: "client-1", Role: model.RoleClient}

	_, err := svc.Request(t.Context(), "appt-1", scheduled.Add(48*time.Hour), "", owner)
	if !apperr.IsConflict(err) {
		t.Fatalf("second pending request: err = %v, want conflict", err)
	}
}

func TestApprove_TerminalAppointment(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.appointments["appt-1"] = model.Appointment{
		ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
		ScheduledAt: now.Add(100 * time.Hour), DurationMinutes: 45,
		Status: model.StatusCompleted,
	}
	store.requests["rr-1"] = model.RescheduleRequest{
		ID: "rr-1", AppointmentID: "appt-1",
		NewScheduledAt: now.Add(124 * time.Hour),
		Status:         model.ReschedulePending,
	}

	svc := newTestService(store, now)
	admin := model.Actor{ID: "adm-1", Role: model.RoleAdmin}

	_, err := svc.Approve(t.Context(), "rr-1", admin)
	if !apperr.IsValidation(err) {
		t.Fatalf("approve against completed appointment: err = %v, want validation", err)
	}
	if store.requests["rr-1"].Status != model.ReschedulePending {
		t.Fatalf("request status = %s, want still pending", store.requests["rr-1"].Status)
	}
}

func TestApprove_RechecksConflicts(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	target := now.Add(124 * time.Hour)
	store := newFakeStore()
	store.appointments["appt-1"] = model.Appointment{
		ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
		ScheduledAt: now.Add(100 * time.Hour), DurationMinutes: 45,
		Status: model.StatusConfirmed,
	}
	// Booked after the request was filed; occupies the requested slot.
	store.appointments["appt-2"] = model.Appointment{
		ID: "appt-2", PractitionerID: "vet-1", PetID: "pet-2",
		ScheduledAt: target.Add(-15 * time.Minute), DurationMinutes: 45,
		Status: model.StatusConfirmed,
	}
	store.requests["rr-1"] = model.RescheduleRequest{
		ID: "rr-1", AppointmentID: "appt-1",
		NewScheduledAt: target, Status: model.ReschedulePending,
	}

	svc := newTestService(store, now)
	admin := model.Actor{ID: "adm-1", Role: model.RoleAdmin}

	_, err := svc.Approve(t.Context(), "rr-1", admin)
	if !apperr.IsConflict(err) {
		t.Fatalf("approve into an occupied slot: err = %v, want conflict", err)
	}
	if !store.appointments["appt-1"].ScheduledAt.Equal(now.Add(100 * time.Hour)) {
		t.Fatal("appointment must keep its original time after a failed approval")
	}
}

func TestForce_TargetPractitionerValidation(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	scheduled := now.Add(48 * time.Hour)
	admin := model.Actor{ID: "adm-1", Role: model.RoleAdmin}

	cases := []struct {
		name   string
		target model.Practitioner
	}{
		{"admin row", model.Practitioner{ID: "p-1", Name: "Back Office", Role: model.RoleAdmin, IsActive: true}},
		{"inactive practitioner", model.Practitioner{ID: "p-1", Name: "Dr. Gone", Role: model.RolePractitioner, IsActive: false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.practitioners["p-1"] = tc.target
			store.appointments["appt-1"] = model.Appointment{
				ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
				ScheduledAt: scheduled, DurationMinutes: 45, Status: model.StatusConfirmed,
			}

			svc := newTestService(store, now)
			_, err := svc.Force(t.Context(), ForceParams{
				AppointmentID:     "appt-1",
				NewScheduledAt:    scheduled.AddDate(0, 0, 10),
				NewPractitionerID: "p-1",
			}, admin)
			if !apperr.IsValidation(err) {
				t.Fatalf("force onto %s: err = %v, want validation", tc.name, err)
			}
			if store.appointments["appt-1"].PractitionerID != "vet-1" {
				t.Fatal("appointment must keep its practitioner after a rejected move")
			}
		})
	}
}
