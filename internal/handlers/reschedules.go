package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/reschedule"
)

type RescheduleHandler struct {
	svc    *reschedule.Service
	logger *slog.Logger
}

func NewRescheduleHandler(svc *reschedule.Service, logger *slog.Logger) *RescheduleHandler {
	return &RescheduleHandler{svc: svc, logger: logger}
}

type rescheduleItem struct {
	RequestID       string `json:"request_id"`
	AppointmentID   string `json:"appointment_id"`
	OldScheduledAt  string `json:"old_scheduled_at"`
	NewScheduledAt  string `json:"new_scheduled_at"`
	RequestedBy     string `json:"requested_by"`
	Note            string `json:"note,omitempty"`
	Status          string `json:"status"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
	ReviewedAt      string `json:"reviewed_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

func toRescheduleItem(rr model.RescheduleRequest) rescheduleItem {
	item := rescheduleItem{
		RequestID:       rr.ID,
		AppointmentID:   rr.AppointmentID,
		OldScheduledAt:  rr.OldScheduledAt.Format(time.RFC3339),
		NewScheduledAt:  rr.NewScheduledAt.Format(time.RFC3339),
		RequestedBy:     rr.RequestedBy,
		Note:            rr.Note,
		Status:          string(rr.Status),
		ReviewedBy:      rr.ReviewedBy,
		RejectionReason: rr.RejectionReason,
	}
	if rr.ReviewedAt != nil {
		item.ReviewedAt = rr.ReviewedAt.Format(time.RFC3339)
	}
	return item
}

// Requests files a reschedule request (POST) or lists an appointment's
// request history (GET).
func (h *RescheduleHandler) Requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.request(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		methodNotAllowed(w)
	}
}

type rescheduleRequestBody struct {
	AppointmentID  string `json:"appointment_id"`
	NewScheduledAt string `json:"new_scheduled_at"`
	Note           string `json:"note"`
}

func (h *RescheduleHandler) request(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req rescheduleRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	newAt, err := time.Parse(time.RFC3339, req.NewScheduledAt)
	if err != nil {
		http.Error(w, "invalid new_scheduled_at", http.StatusBadRequest)
		return
	}

	rr, err := h.svc.Request(r.Context(), req.AppointmentID, newAt, strings.TrimSpace(req.Note), actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRescheduleItem(rr))
}

func (h *RescheduleHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	requests, err := h.svc.List(r.Context(), appointmentID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]rescheduleItem, 0, len(requests))
	for _, rr := range requests {
		items = append(items, toRescheduleItem(rr))
	}
	writeJSON(w, http.StatusOK, items)
}

type reviewRequestBody struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// Approve moves the appointment to the requested time (staff only).
func (h *RescheduleHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req reviewRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		http.Error(w, "request_id required", http.StatusBadRequest)
		return
	}

	rr, err := h.svc.Approve(r.Context(), req.RequestID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRescheduleItem(rr))
}

// Reject closes a pending request without moving the appointment.
func (h *RescheduleHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req reviewRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		http.Error(w, "request_id required", http.StatusBadRequest)
		return
	}

	rr, err := h.svc.Reject(r.Context(), req.RequestID, strings.TrimSpace(req.Reason), actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRescheduleItem(rr))
}

type forceRequestBody struct {
	AppointmentID     string `json:"appointment_id"`
	NewScheduledAt    string `json:"new_scheduled_at"`
	NewPractitionerID string `json:"new_practitioner_id"`
	Reason            string `json:"reason"`
}

// Force applies a staff-initiated move without client consent.
func (h *RescheduleHandler) Force(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req forceRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	newAt, err := time.Parse(time.RFC3339, req.NewScheduledAt)
	if err != nil {
		http.Error(w, "invalid new_scheduled_at", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Force(r.Context(), reschedule.ForceParams{
		AppointmentID:     req.AppointmentID,
		NewScheduledAt:    newAt,
		NewPractitionerID: strings.TrimSpace(req.NewPractitionerID),
		Reason:            strings.TrimSpace(req.Reason),
	}, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}
