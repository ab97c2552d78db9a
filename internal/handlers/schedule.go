package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vetsuite/vetsuite/internal/availability"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/storage"
)

// ScheduleHandler administers working hours and date overrides. Hours and
// overrides are expressed as "HH:MM" strings on the wire and minutes from
// midnight in storage.
type ScheduleHandler struct {
	repo   *storage.Repository
	logger *slog.Logger
}

func NewScheduleHandler(repo *storage.Repository, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{repo: repo, logger: logger}
}

type workingHoursItem struct {
	PractitionerID string `json:"practitioner_id"`
	Weekday        int    `json:"weekday"` // 0 = Sunday
	IsWorking      bool   `json:"is_working"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
}

// WorkingHours lists (GET) or upserts (PUT) a practitioner's recurring
// weekly schedule. Staff only for writes.
func (h *ScheduleHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listWorkingHours(w, r)
	case http.MethodPut, http.MethodPost:
		h.upsertWorkingHours(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *ScheduleHandler) listWorkingHours(w http.ResponseWriter, r *http.Request) {
	practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id"))
	if practitionerID == "" {
		http.Error(w, "practitioner_id required", http.StatusBadRequest)
		return
	}
	hours, err := h.repo.ListWorkingHours(r.Context(), practitionerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]workingHoursItem, 0, len(hours))
	for _, wh := range hours {
		item := workingHoursItem{
			PractitionerID: wh.PractitionerID,
			Weekday:        int(wh.Weekday),
			IsWorking:      wh.IsWorking,
		}
		if wh.IsWorking {
			item.StartTime = clockLabel(wh.StartMinute)
			item.EndTime = clockLabel(wh.EndMinute)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ScheduleHandler) upsertWorkingHours(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.Role.Staff() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "only staff can edit working hours"})
		return
	}

	var req workingHoursItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	if req.PractitionerID == "" {
		http.Error(w, "practitioner_id required", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be 0..6", http.StatusBadRequest)
		return
	}
	exists, err := h.repo.PractitionerExists(r.Context(), req.PractitionerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !exists {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "practitioner not found"})
		return
	}

	wh := model.WorkingHours{
		PractitionerID: req.PractitionerID,
		Weekday:        time.Weekday(req.Weekday),
		IsWorking:      req.IsWorking,
	}
	if req.IsWorking {
		start, end, ok := parseWindow(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}
		wh.StartMinute = start
		wh.EndMinute = end
	}
	if err := h.repo.UpsertWorkingHours(r.Context(), wh); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type overrideItem struct {
	OverrideID     string `json:"override_id"`
	PractitionerID string `json:"practitioner_id"`
	Date           string `json:"date"`
	DayOff         bool   `json:"day_off"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	Status         string `json:"status"`
}

func toOverrideItem(ov model.ScheduleOverride) overrideItem {
	item := overrideItem{
		OverrideID:     ov.ID,
		PractitionerID: ov.PractitionerID,
		Date:           ov.Date.Format("2006-01-02"),
		DayOff:         ov.DayOff(),
		Status:         string(ov.Status),
	}
	if !ov.DayOff() {
		item.StartTime = clockLabel(ov.StartMinute)
		item.EndTime = clockLabel(ov.EndMinute)
	}
	return item
}

// Overrides proposes a date override (POST) or lists them (GET).
func (h *ScheduleHandler) Overrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.proposeOverride(w, r)
	case http.MethodGet:
		h.listOverrides(w, r)
	default:
		methodNotAllowed(w)
	}
}

type proposeOverrideRequest struct {
	PractitionerID string `json:"practitioner_id"`
	Date           string `json:"date"`
	DayOff         bool   `json:"day_off"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

func (h *ScheduleHandler) proposeOverride(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.Role.Staff() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "only staff can propose overrides"})
		return
	}

	var req proposeOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	if req.PractitionerID == "" {
		http.Error(w, "practitioner_id required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	ov := model.ScheduleOverride{
		PractitionerID: req.PractitionerID,
		Date:           date,
		Status:         model.OverridePending,
	}
	if !req.DayOff {
		start, end, ok := parseWindow(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}
		ov.StartMinute = start
		ov.EndMinute = end
	}

	id, err := h.repo.ProposeOverride(r.Context(), ov)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ov.ID = id
	writeJSON(w, http.StatusCreated, toOverrideItem(ov))
}

func (h *ScheduleHandler) listOverrides(w http.ResponseWriter, r *http.Request) {
	practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id"))
	if practitionerID == "" {
		http.Error(w, "practitioner_id required", http.StatusBadRequest)
		return
	}
	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 3, 0)

	overrides, err := h.repo.ListOverrides(r.Context(), practitionerID, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]overrideItem, 0, len(overrides))
	for _, ov := range overrides {
		items = append(items, toOverrideItem(ov))
	}
	writeJSON(w, http.StatusOK, items)
}

type resolveOverrideRequest struct {
	OverrideID string `json:"override_id"`
	Approve    bool   `json:"approve"`
}

// ResolveOverride approves or rejects a pending override (admin only).
// Approvals can also arrive on the Kafka HR topic; both paths converge on
// the same repository call.
func (h *ScheduleHandler) ResolveOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "only admins can resolve overrides"})
		return
	}

	var req resolveOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.OverrideID = strings.TrimSpace(req.OverrideID)
	if req.OverrideID == "" {
		http.Error(w, "override_id required", http.StatusBadRequest)
		return
	}

	status := model.OverrideRejected
	if req.Approve {
		status = model.OverrideApproved
	}
	if err := h.repo.ResolveOverride(r.Context(), req.OverrideID, status); err != nil {
		if storage.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "pending override not found"})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"override_id": req.OverrideID, "status": string(status)})
}

// parseWindow validates an "HH:MM" pair and converts it to minutes.
func parseWindow(w http.ResponseWriter, startLabel, endLabel string) (int, int, bool) {
	start, err := availability.ParseClock(strings.TrimSpace(startLabel))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, 0, false
	}
	end, err := availability.ParseClock(strings.TrimSpace(endLabel))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, 0, false
	}
	if end <= start {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return 0, 0, false
	}
	return start, end, true
}

func clockLabel(minuteOfDay int) string {
	h := minuteOfDay / 60
	m := minuteOfDay % 60
	return time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
}
