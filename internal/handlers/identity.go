package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/vetsuite/vetsuite/internal/model"
)

// Identity arrives pre-resolved from the edge gateway in trusted headers.
// This service never sees credentials.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

type actorKey struct{}

// WithIdentity parses the identity headers into a model.Actor and stores it
// on the request context. Requests without identity pass through; each
// handler decides whether anonymous access is acceptable.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		role := model.Role(strings.TrimSpace(r.Header.Get(HeaderUserRole)))
		if id != "" && validRole(role) {
			ctx := context.WithValue(r.Context(), actorKey{}, model.Actor{ID: id, Role: role})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func validRole(r model.Role) bool {
	return r == model.RoleClient || r == model.RolePractitioner || r == model.RoleAdmin
}

// actorFrom returns the request's actor, or false for anonymous requests.
func actorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

// requireActor rejects anonymous requests with 401.
func requireActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	a, ok := actorFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "identity headers missing"})
		return model.Actor{}, false
	}
	return a, true
}
