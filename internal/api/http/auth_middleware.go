package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// ActorHeader carries the acting user id set by the upstream gateway.
	ActorHeader = "X-User-ID"
	// OperatorHeader carries the shared key for operator-only routes.
	OperatorHeader = "X-Operator-Key"
)

func (s *Server) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(ActorHeader))
		if raw == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", ActorHeader+" header required")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid "+ActorHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), id)))
	})
}

// actor returns the acting user. Routes without requireActor get uuid.Nil.
func actor(r *http.Request) uuid.UUID {
	id, _ := actorFromContext(r.Context())
	return id
}

// requireOperator guards operator-only routes with the configured key. An
// empty key disables them.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.operatorKey == "" {
			respondError(w, http.StatusForbidden, "FORBIDDEN", "operator routes are disabled")
			return
		}
		key := r.Header.Get(OperatorHeader)
		if key == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", OperatorHeader+" header required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.operatorKey)) != 1 {
			respondError(w, http.StatusForbidden, "FORBIDDEN", "invalid "+OperatorHeader)
			return
		}
		next.ServeHTTP(w, r)
	})
}
