package lifecycle

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
	appointments   map[string]model.Appointment
	practitioners  map[string]model.Practitioner
	pets           map[string]model.Pet
	vaccTypes      map[string]model.VaccinationType
	clinicServices map[string]model.ClinicService
	vaccRecords    []model.VaccinationRecord
	medRecords     []model.MedicalRecord
	serviceItems   []model.ServiceItem
	nextID         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appointments:   map[string]model.Appointment{},
		practitioners:  map[string]model.Practitioner{},
		pets:           map[string]model.Pet{},
		vaccTypes:      map[string]model.VaccinationType{},
		clinicServices: map[string]model.ClinicService{},
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

func (f *fakeStore) ListForConflict(_ context.Context, _ pgx.Tx, practitionerID string, _, _ time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.PractitionerID == practitionerID && !a.Status.Cancelled() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAppointmentsForPet(_ context.Context, petID string, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.PetID == petID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, _ pgx.Tx, a *model.Appointment) (string, error) {
	f.nextID++
	id := fmt.Sprintf("appt-%d", f.nextID)
	stored := *a
	stored.ID = id
	f.appointments[id] = stored
	return id, nil
}

func (f *fakeStore) UpdateAppointmentStatus(_ context.Context, _ pgx.Tx, id string, status model.AppointmentStatus) error {
	appt, ok := f.appointments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	appt.Status = status
	f.appointments[id] = appt
	return nil
}

func (f *fakeStore) ApplyCancellation(_ context.Context, _ pgx.Tx, id string, status model.AppointmentStatus, feeCents *int64, feeNote string) error {
	appt, ok := f.appointments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	appt.Status = status
	appt.FeeCents = feeCents
	appt.FeeNote = feeNote
	f.appointments[id] = appt
	return nil
}

func (f *fakeStore) DeleteAppointment(_ context.Context, _ pgx.Tx, id string) error {
	if _, ok := f.appointments[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.appointments, id)
	return nil
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

func (f *fakeStore) GetVaccinationType(_ context.Context, id string) (model.VaccinationType, error) {
	vt, ok := f.vaccTypes[id]
	if !ok {
		return model.VaccinationType{}, pgx.ErrNoRows
	}
	return vt, nil
}

func (f *fakeStore) GetClinicService(_ context.Context, id string) (model.ClinicService, error) {
	s, ok := f.clinicServices[id]
	if !ok {
		return model.ClinicService{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeStore) CreateVaccinationRecord(_ context.Context, rec model.VaccinationRecord) (string, error) {
	f.vaccRecords = append(f.vaccRecords, rec)
	return fmt.Sprintf("vr-%d", len(f.vaccRecords)), nil
}

func (f *fakeStore) CreateMedicalRecord(_ context.Context, rec model.MedicalRecord) (string, error) {
	f.medRecords = append(f.medRecords, rec)
	return fmt.Sprintf("mr-%d", len(f.medRecords)), nil
}

func (f *fakeStore) AttachServiceItem(_ context.Context, _ pgx.Tx, item model.ServiceItem) (string, error) {
	f.serviceItems = append(f.serviceItems, item)
	return fmt.Sprintf("si-%d", len(f.serviceItems)), nil
}

type fakeEvents struct {
	events []outbox.Event
}

func (f *fakeEvents) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

type fakeBiller struct {
	penalties int
	pushes    int
}

func (f *fakeBiller) RecordPenalty(context.Context, pgx.Tx, model.Appointment, string, int64, string) (string, error) {
	f.penalties++
	return fmt.Sprintf("pen-%d", f.penalties), nil
}

func (f *fakeBiller) PushToStripe(context.Context, string, string, int64, string) {
	f.pushes++
}

func newTestService(store *fakeStore, now time.Time) *Service {
	return NewService(store, &fakeEvents{}, &fakeBiller{}, slog.New(slog.DiscardHandler)).
		WithClock(func() time.Time { return now })
}

func TestBook_ConflictGuard(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	busy := now.Add(72 * time.Hour)
	owner := model.Actor{ID: "client-1", Role: model.RoleClient}

	setup := func() *fakeStore {
		store := newFakeStore()
		store.practitioners["vet-1"] = model.Practitioner{ID: "vet-1", Name: "Dr. Lee", Role: model.RolePractitioner, IsActive: true}
		store.pets["pet-1"] = model.Pet{ID: "pet-1", OwnerID: "client-1", Name: "Rex"}
		store.appointments["appt-1"] = model.Appointment{
			ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
			ScheduledAt: busy, DurationMinutes: 45, Status: model.StatusConfirmed,
		}
		return store
	}

	cases := []struct {
		name        string
		scheduledAt time.Time
		wantErr     bool
	}{
		{"starts inside the existing visit", busy.Add(30 * time.Minute), true},
		{"ends inside the existing visit", busy.Add(-30 * time.Minute), true},
		{"same start", busy, true},
		{"back to back after", busy.Add(45 * time.Minute), false},
		{"back to back before", busy.Add(-45 * time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := setup()
			svc := newTestService(store, now)
			appt, err := svc.Book(t.Context(), BookParams{
				PractitionerID: "vet-1",
				PetID:          "pet-1",
				ScheduledAt:    tc.scheduledAt,
			}, owner)
			if tc.wantErr {
				if !apperr.IsConflict(err) {
					t.Fatalf("Book = %v, want conflict", err)
				}
				if len(store.appointments) != 1 {
					t.Fatal("a rejected booking must not be stored")
				}
				return
			}
			if err != nil {
				t.Fatalf("Book: %v", err)
			}
			if appt.Status != model.StatusProposed {
				t.Fatalf("client booking status = %s, want proposed", appt.Status)
			}
			if appt.DurationMinutes != 45 {
				t.Fatalf("default duration = %d, want 45", appt.DurationMinutes)
			}
		})
	}
}

func TestBook_CancelledSlotIsFree(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	at := now.Add(72 * time.Hour)
	store := newFakeStore()
	store.practitioners["vet-1"] = model.Practitioner{ID: "vet-1", Name: "Dr. Lee", Role: model.RolePractitioner, IsActive: true}
	store.pets["pet-1"] = model.Pet{ID: "pet-1", OwnerID: "client-1", Name: "Rex"}
	store.appointments["appt-1"] = model.Appointment{
		ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
		ScheduledAt: at, DurationMinutes: 45, Status: model.StatusCancelled,
	}

	svc := newTestService(store, now)
	if _, err := svc.Book(t.Context(), BookParams{
		PractitionerID: "vet-1",
		PetID:          "pet-1",
		ScheduledAt:    at,
	}, model.Actor{ID: "client-1", Role: model.RoleClient}); err != nil {
		t.Fatalf("booking over a cancelled appointment: %v", err)
	}
}

func TestSetStatus_CompletionRecords(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	staff := model.Actor{ID: "vet-1", Role: model.RolePractitioner}

	cases := []struct {
		name       string
		vaccTypeID string
		outcome    VaccinationOutcome
		wantVacc   int
		wantMed    int
	}{
		{"administered", "vt-rabies", VaccinationPerformed, 1, 1},
		{"declined on the day", "vt-rabies", VaccinationNotPerformed, 0, 1},
		{"no answer from staff", "vt-rabies", VaccinationNotApplicable, 0, 0},
		{"plain checkup", "", VaccinationPerformed, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.pets["pet-1"] = model.Pet{ID: "pet-1", OwnerID: "client-1", Name: "Rex"}
			store.appointments["appt-1"] = model.Appointment{
				ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
				ScheduledAt: now.Add(-time.Hour), DurationMinutes: 45,
				Status:            model.StatusInProgress,
				VaccinationTypeID: tc.vaccTypeID,
			}

			svc := newTestService(store, now)
			result, err := svc.SetStatus(t.Context(), "appt-1", model.StatusCompleted, tc.outcome, staff)
			if err != nil {
				t.Fatalf("SetStatus: %v", err)
			}
			if result.Status != model.StatusCompleted {
				t.Fatalf("status = %s, want completed", result.Status)
			}
			if len(store.vaccRecords) != tc.wantVacc {
				t.Fatalf("vaccination records = %d, want %d", len(store.vaccRecords), tc.wantVacc)
			}
			if len(store.medRecords) != tc.wantMed {
				t.Fatalf("medical records = %d, want %d", len(store.medRecords), tc.wantMed)
			}
			if result.VaccinationRecorded != (tc.wantVacc > 0) || result.MedicalRecorded != (tc.wantMed > 0) {
				t.Fatalf("advisory flags = %+v", result)
			}
			if store.appointments["appt-1"].Status != model.StatusCompleted {
				t.Fatal("stored appointment must land in completed")
			}
		})
	}
}

func TestSetStatus_NotPerformedNoteDocumentsSkip(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.pets["pet-1"] = model.Pet{ID: "pet-1", OwnerID: "client-1", Name: "Rex"}
	store.appointments["appt-1"] = model.Appointment{
		ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
		ScheduledAt: now.Add(-time.Hour), DurationMinutes: 45,
		Status:            model.StatusInProgress,
		VaccinationTypeID: "vt-rabies",
	}

	svc := newTestService(store, now)
	if _, err := svc.SetStatus(t.Context(), "appt-1", model.StatusCompleted, VaccinationNotPerformed,
		model.Actor{ID: "vet-1", Role: model.RolePractitioner}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if len(store.medRecords) != 1 || store.medRecords[0].Note != "scheduled vaccination was not administered" {
		t.Fatalf("medical records = %+v", store.medRecords)
	}
}
