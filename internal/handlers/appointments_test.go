package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vetsuite/vetsuite/internal/lifecycle"
	"github.com/vetsuite/vetsuite/internal/model"
)

// previewStore serves exactly one appointment; the embedded interface
// covers the methods the preview path never touches.
type previewStore struct {
	lifecycle.Store
	appt model.Appointment
}

func (s previewStore) GetAppointment(context.Context, string) (model.Appointment, error) {
	return s.appt, nil
}

func TestCancelPreview_ReportsResultingStatus(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	appt := model.Appointment{
		ID: "appt-1", PractitionerID: "vet-1", PetID: "pet-1",
		ScheduledAt: now.Add(30 * time.Hour), DurationMinutes: 45,
		Status: model.StatusConfirmed,
	}

	logger := slog.New(slog.DiscardHandler)
	svc := lifecycle.NewService(previewStore{appt: appt}, nil, nil, logger)
	h := NewAppointmentHandler(svc, nil, logger)
	h.clock = func() time.Time { return now }

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/cancel-preview?id=appt-1", nil)
	req.Header.Set(HeaderUserID, "adm-1")
	req.Header.Set(HeaderUserRole, "admin")
	rec := httptest.NewRecorder()
	WithIdentity(http.HandlerFunc(h.CancelPreview)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		CanCancel bool   `json:"can_cancel"`
		Status    string `json:"status"`
		HasFee    bool   `json:"has_fee"`
		FeeCents  int64  `json:"fee_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.CanCancel || !body.HasFee {
		t.Fatalf("preview at 30h lead = %+v, want fee-bearing", body)
	}
	if body.Status != string(model.StatusCancelledLate) {
		t.Fatalf("resulting status = %q, want %q", body.Status, model.StatusCancelledLate)
	}
}
