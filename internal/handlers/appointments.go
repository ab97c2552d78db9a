package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vetsuite/vetsuite/internal/lifecycle"
	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/policy"
	"github.com/vetsuite/vetsuite/internal/storage"
)

type AppointmentHandler struct {
	svc    *lifecycle.Service
	repo   *storage.Repository
	logger *slog.Logger
	clock  func() time.Time
}

func NewAppointmentHandler(svc *lifecycle.Service, repo *storage.Repository, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		svc:    svc,
		repo:   repo,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

type appointmentItem struct {
	AppointmentID     string `json:"appointment_id"`
	PractitionerID    string `json:"practitioner_id"`
	PetID             string `json:"pet_id"`
	ScheduledAt       string `json:"scheduled_at"`
	DurationMinutes   int    `json:"duration_minutes"`
	Status            string `json:"status"`
	VaccinationTypeID string `json:"vaccination_type_id,omitempty"`
	Reason            string `json:"reason,omitempty"`
	FeeCents          *int64 `json:"fee_cents,omitempty"`
	FeePaid           bool   `json:"fee_paid,omitempty"`
	FeeNote           string `json:"fee_note,omitempty"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID:     a.ID,
		PractitionerID:    a.PractitionerID,
		PetID:             a.PetID,
		ScheduledAt:       a.ScheduledAt.Format(time.RFC3339),
		DurationMinutes:   a.DurationMinutes,
		Status:            string(a.Status),
		VaccinationTypeID: a.VaccinationTypeID,
		Reason:            a.Reason,
		FeeCents:          a.FeeCents,
		FeePaid:           a.FeePaid,
		FeeNote:           a.FeeNote,
	}
}

// Appointments dispatches the collection endpoint: POST books, GET reads
// one appointment or a pet's history, DELETE removes (staff only).
func (h *AppointmentHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.get(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		methodNotAllowed(w)
	}
}

type createAppointmentRequest struct {
	PractitionerID    string `json:"practitioner_id"`
	PetID             string `json:"pet_id"`
	ScheduledAt       string `json:"scheduled_at"`
	DurationMinutes   int    `json:"duration_minutes"`
	Reason            string `json:"reason"`
	VaccinationTypeID string `json:"vaccination_type_id"`
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	req.PetID = strings.TrimSpace(req.PetID)
	if req.PractitionerID == "" || req.PetID == "" {
		http.Error(w, "practitioner_id and pet_id required", http.StatusBadRequest)
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Book(r.Context(), lifecycle.BookParams{
		PractitionerID:    req.PractitionerID,
		PetID:             req.PetID,
		ScheduledAt:       scheduledAt,
		DurationMinutes:   req.DurationMinutes,
		Reason:            strings.TrimSpace(req.Reason),
		VaccinationTypeID: strings.TrimSpace(req.VaccinationTypeID),
	}, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

func (h *AppointmentHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		appt, err := h.svc.Get(r.Context(), id, actor)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentItem(appt))
		return
	}

	petID := strings.TrimSpace(r.URL.Query().Get("pet_id"))
	if petID == "" {
		http.Error(w, "id or pet_id required", http.StatusBadRequest)
		return
	}
	appts, err := h.svc.ListForPet(r.Context(), petID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.svc.Delete(r.Context(), id, actor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type cancelResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	HasFee        bool   `json:"has_fee"`
	FeeCents      int64  `json:"fee_cents,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Cancel applies the tiered cancellation policy to one appointment.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Cancel(r.Context(), req.AppointmentID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		AppointmentID: req.AppointmentID,
		Status:        string(result.Status),
		HasFee:        result.HasFee,
		FeeCents:      result.FeeCents,
		Message:       result.Message,
	})
}

type cancelPreviewResponse struct {
	CanCancel bool   `json:"can_cancel"`
	Status    string `json:"status,omitempty"`
	HasFee    bool   `json:"has_fee"`
	FeeCents  int64  `json:"fee_cents,omitempty"`
	Message   string `json:"message,omitempty"`
	LeadTime  string `json:"lead_time"`
}

// CancelPreview classifies a hypothetical cancellation without applying
// it, so clients can warn the user before confirming.
func (h *AppointmentHandler) CancelPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Get(r.Context(), id, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := h.clock()
	outcome := policy.ClassifyCancellation(appt.ScheduledAt, now)
	writeJSON(w, http.StatusOK, cancelPreviewResponse{
		CanCancel: outcome.CanCancel,
		Status:    string(outcome.Status),
		HasFee:    outcome.HasFee,
		FeeCents:  outcome.FeeCents,
		Message:   outcome.Message,
		LeadTime:  policy.FormatLeadTime(appt.ScheduledAt.Sub(now)),
	})
}

type setStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	// VaccinationPerformed is only consulted when completing a
	// vaccination appointment; nil means the question was not answered.
	VaccinationPerformed *bool `json:"vaccination_performed"`
}

type setStatusResponse struct {
	AppointmentID       string `json:"appointment_id"`
	Status              string `json:"status"`
	VaccinationRecorded bool   `json:"vaccination_recorded"`
	MedicalRecorded     bool   `json:"medical_recorded"`
	SideEffectError     string `json:"side_effect_error,omitempty"`
}

// SetStatus moves an appointment through the status machine (staff only).
func (h *AppointmentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" || strings.TrimSpace(req.Status) == "" {
		http.Error(w, "appointment_id and status required", http.StatusBadRequest)
		return
	}

	outcome := lifecycle.VaccinationNotApplicable
	if req.VaccinationPerformed != nil {
		if *req.VaccinationPerformed {
			outcome = lifecycle.VaccinationPerformed
		} else {
			outcome = lifecycle.VaccinationNotPerformed
		}
	}

	result, err := h.svc.SetStatus(r.Context(), req.AppointmentID,
		model.AppointmentStatus(strings.TrimSpace(req.Status)), outcome, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, setStatusResponse{
		AppointmentID:       req.AppointmentID,
		Status:              string(result.Status),
		VaccinationRecorded: result.VaccinationRecorded,
		MedicalRecorded:     result.MedicalRecorded,
		SideEffectError:     result.SideEffectError,
	})
}

type attachServiceRequest struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	Quantity      int    `json:"quantity"`
}

type serviceItemResponse struct {
	ItemID        string `json:"item_id"`
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	Quantity      int    `json:"quantity"`
	PriceCents    int64  `json:"price_cents"`
}

// Services attaches a billed line item (POST) or lists items (GET).
func (h *AppointmentHandler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.attachService(w, r)
	case http.MethodGet:
		h.listServices(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *AppointmentHandler) attachService(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req attachServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.AppointmentID == "" || req.ServiceID == "" {
		http.Error(w, "appointment_id and service_id required", http.StatusBadRequest)
		return
	}

	item, err := h.svc.AttachService(r.Context(), req.AppointmentID, req.ServiceID, req.Quantity, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, serviceItemResponse{
		ItemID:        item.ID,
		AppointmentID: item.AppointmentID,
		ServiceID:     item.ServiceID,
		Quantity:      item.Quantity,
		PriceCents:    item.PriceCents,
	})
}

func (h *AppointmentHandler) listServices(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if id == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	// Visibility check rides on the appointment lookup.
	if _, err := h.svc.Get(r.Context(), id, actor); err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.repo.ListServiceItems(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]serviceItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, serviceItemResponse{
			ItemID:        item.ID,
			AppointmentID: item.AppointmentID,
			ServiceID:     item.ServiceID,
			Quantity:      item.Quantity,
			PriceCents:    item.PriceCents,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
