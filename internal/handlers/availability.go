package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vetsuite/vetsuite/internal/availability"
	"github.com/vetsuite/vetsuite/internal/model"
)

type AvailabilityHandler struct {
	svc    *availability.Service
	logger *slog.Logger
}

func NewAvailabilityHandler(svc *availability.Service, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type slotsResponse struct {
	PractitionerID string       `json:"practitioner_id"`
	Date           string       `json:"date"`
	Slots          []model.Slot `json:"slots"`
}

// Slots returns the bookable grid for one practitioner and day. Anonymous
// callers get the client view; staff identity loosens the same-day guard.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id"))
	if practitionerID == "" {
		http.Error(w, "practitioner_id required", http.StatusBadRequest)
		return
	}
	date, ok := parseDate(w, r)
	if !ok {
		return
	}

	role := model.RoleClient
	if a, ok := actorFrom(r.Context()); ok {
		role = a.Role
	}

	slots, err := h.svc.ComputeSlots(r.Context(), practitionerID, date, role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		PractitionerID: practitionerID,
		Date:           date.Format("2006-01-02"),
		Slots:          slots,
	})
}

// TimeRange returns the clinic-wide open envelope for a date.
func (h *AvailabilityHandler) TimeRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	date, ok := parseDate(w, r)
	if !ok {
		return
	}
	tr, err := h.svc.ClinicTimeRange(r.Context(), date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

type practitionersResponse struct {
	Date          string                          `json:"date"`
	Time          string                          `json:"time"`
	Practitioners []availability.PractitionerSlot `json:"practitioners"`
}

// Practitioners lists who is working and free at one slot.
func (h *AvailabilityHandler) Practitioners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	date, ok := parseDate(w, r)
	if !ok {
		return
	}
	clock := strings.TrimSpace(r.URL.Query().Get("time"))
	if clock == "" {
		http.Error(w, "time required (HH:MM)", http.StatusBadRequest)
		return
	}

	out, err := h.svc.PractitionersForSlot(r.Context(), date, clock)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, practitionersResponse{
		Date:          date.Format("2006-01-02"),
		Time:          clock,
		Practitioners: out,
	})
}

// parseDate reads the date query parameter as a UTC calendar day.
func parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		http.Error(w, "date required (YYYY-MM-DD)", http.StatusBadRequest)
		return time.Time{}, false
	}
	date, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, false
	}
	return date, true
}
