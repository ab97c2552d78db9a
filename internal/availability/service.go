package availability

import (
	"context"
	"time"

	"github.com/vetsuite/vetsuite/internal/apperr"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/storage"
)

// Service resolves availability against the store. All reads are advisory
// and lock-free; "now" is captured once per call so a whole grid is
// internally consistent.
type Service struct {
	repo  *storage.Repository
	clock func() time.Time
}

func NewService(repo *storage.Repository) *Service {
	return &Service{repo: repo, clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// ComputeSlots returns the slot grid for one practitioner and date. date
// must be midnight UTC of the queried day.
func (s *Service) ComputeSlots(ctx context.Context, practitionerID string, date time.Time, role model.Role) ([]model.Slot, error) {
	practitioner, err := s.repo.GetPractitioner(ctx, practitionerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apperr.NotFound("practitioner %s not found", practitionerID)
		}
		return nil, err
	}
	if !practitioner.IsActive {
		return []model.Slot{}, nil
	}

	window, ok, err := s.resolveWindow(ctx, practitionerID, date)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.Slot{}, nil
	}

	booked, err := s.repo.ListBookedStarts(ctx, practitionerID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	slots := SlotGrid(date, window, booked, s.clock(), role)
	if slots == nil {
		slots = []model.Slot{}
	}
	return slots, nil
}

// ClinicTimeRange reduces every active practitioner's day window to the
// clinic-wide [min open, max close] envelope for the date.
func (s *Service) ClinicTimeRange(ctx context.Context, date time.Time) (TimeRange, error) {
	practitioners, err := s.repo.ListActivePractitioners(ctx)
	if err != nil {
		return TimeRange{}, err
	}

	var windows []DayWindow
	for _, p := range practitioners {
		window, ok, err := s.resolveWindow(ctx, p.ID, date)
		if err != nil {
			return TimeRange{}, err
		}
		if ok {
			windows = append(windows, window)
		}
	}
	return ReduceTimeRange(windows), nil
}

// PractitionerSlot is one practitioner's standing for a single slot.
type PractitionerSlot struct {
	PractitionerID string `json:"practitioner_id"`
	Name           string `json:"name"`
	IsAvailable    bool   `json:"is_available"`
}

// PractitionersForSlot is the dual of ComputeSlots: for one slot, which
// practitioners are working that day and still free at that time.
func (s *Service) PractitionersForSlot(ctx context.Context, date time.Time, clock string) ([]PractitionerSlot, error) {
	minuteOfDay, err := ParseClock(clock)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	slotAt := date.Add(time.Duration(minuteOfDay) * time.Minute)

	practitioners, err := s.repo.ListActivePractitioners(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PractitionerSlot, 0, len(practitioners))
	for _, p := range practitioners {
		window, ok, err := s.resolveWindow(ctx, p.ID, date)
		if err != nil {
			return nil, err
		}
		if !ok || !WindowContains(window, minuteOfDay) {
			continue
		}

		booked, err := s.repo.ListBookedStarts(ctx, p.ID, date, date.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		out = append(out, PractitionerSlot{
			PractitionerID: p.ID,
			Name:           p.Name,
			IsAvailable:    !startsAt(booked, slotAt),
		})
	}
	return out, nil
}

func (s *Service) resolveWindow(ctx context.Context, practitionerID string, date time.Time) (DayWindow, bool, error) {
	override, err := s.repo.GetApprovedOverride(ctx, practitionerID, date)
	if err != nil {
		return DayWindow{}, false, err
	}
	hours, err := s.repo.GetWorkingHours(ctx, practitionerID, date.Weekday())
	if err != nil {
		return DayWindow{}, false, err
	}
	window, ok := ResolveDayWindow(hours, override)
	return window, ok, nil
}
