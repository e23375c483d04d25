package httpapi

import (
	"net/http"

	appStats "github.com/tradeduel/tradeduel/internal/application/stats"
	"github.com/tradeduel/tradeduel/internal/domain/stats"
)

// Stats handlers
func (s *Server) getUserStats(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	st, err := s.statsSvc.UserStats(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 20, appStats.MaxLeaderboard)
	entries, err := s.statsSvc.Leaderboard(r.Context(), limit)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*stats.LeaderboardEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
