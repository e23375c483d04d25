package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/infrastructure/sse"
)

// eventStream streams the caller's challenge events. Browsers cannot set
// headers on EventSource, so the user may also come from ?userId=.
func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.Header.Get(ActorHeader))
	if raw == "" {
		raw = r.URL.Query().Get("userId")
	}
	userID, err := uuid.Parse(raw)
	if err != nil || userID == uuid.Nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", ActorHeader+" header or userId required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	client := sse.NewClient(clientID, userID)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Send an initial comment to flush headers and keep the connection alive.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, open := <-client.MessageChan:
			if !open || msg == nil {
				return
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Event, msg.Data)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
