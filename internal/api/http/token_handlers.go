package httpapi

import (
	"errors"
	"net/http"

	"github.com/tradeduel/tradeduel/internal/domain/ledger"
)

type creditTokensRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"max=128"`
}

// Token handlers
func (s *Server) getTokenBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	acct, err := s.ledgerSvc.Balance(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (s *Server) listTokenHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 500)
	txs, err := s.ledgerSvc.History(r.Context(), userID, limit, offset)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*ledger.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

func (s *Server) creditTokens(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	var req creditTokensRequest
	if !s.bind(w, r, &req) {
		return
	}
	tx, err := s.ledgerSvc.Credit(r.Context(), userID, req.Amount, req.Reference)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// reconcileTokens reports the cached balance against the folded log. A
// mismatch is still a 200 so operators can read both numbers.
func (s *Server) reconcileTokens(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	rec, err := s.ledgerSvc.Reconcile(r.Context(), userID)
	if err != nil && !errors.Is(err, ledger.ErrBalanceMismatch) {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
