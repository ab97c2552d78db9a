package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vetsuite/vetsuite/internal/apperr"
	"github.com/vetsuite/vetsuite/internal/model"
)

func TestWithIdentity(t *testing.T) {
	var got model.Actor
	var present bool
	h := WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, present = actorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderUserRole, "client")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !present || got.ID != "u1" || got.Role != model.RoleClient {
		t.Fatalf("actor = %+v present=%v", got, present)
	}
}

func TestWithIdentity_InvalidRoleIsAnonymous(t *testing.T) {
	var present bool
	h := WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = actorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderUserRole, "superuser")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if present {
		t.Fatal("an unknown role must not produce an actor")
	}
}

func TestWriteError_StatusMapping(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad input"), http.StatusBadRequest},
		{apperr.Forbidden("not yours"), http.StatusForbidden},
		{apperr.NotFound("missing"), http.StatusNotFound},
		{apperr.Conflict("slot taken"), http.StatusConflict},
		{http.ErrBodyNotAllowed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, logger, tc.err)
		if rec.Code != tc.want {
			t.Fatalf("writeError(%v) status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
