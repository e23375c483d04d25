package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	domainChallenge "github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
)

// errorCodes is checked in order; the first match names the error.
var errorCodes = []struct {
	err  error
	code string
}{
	{ledger.ErrInsufficientTokens, "INSUFFICIENT_TOKENS"},
	{ledger.ErrInvalidAmount, "INVALID_AMOUNT"},
	{ledger.ErrBalanceMismatch, "BALANCE_MISMATCH"},
	{domainChallenge.ErrChallengeExpired, "CHALLENGE_EXPIRED"},
	{domainChallenge.ErrInvariantViolation, "INVARIANT_VIOLATION"},
	{domainChallenge.ErrConcurrentModification, "CONCURRENT_MODIFICATION"},
	{domainChallenge.ErrNotFound, "NOT_FOUND"},
	{domainChallenge.ErrInvalidWindow, "INVALID_WINDOW"},
	{domainChallenge.ErrInvalidParticipant, "INVALID_PARTICIPANT"},
	{domainChallenge.ErrInvalidBet, "INVALID_BET"},
	{domainChallenge.ErrInvalidBalance, "INVALID_BALANCE"},
	{trade.ErrExceedsPosition, "EXCEEDS_POSITION"},
	{trade.ErrOutOfOrder, "OUT_OF_ORDER_TRADE"},
	{domainChallenge.ErrInvalidTrade, "INVALID_TRADE"},
	{domainChallenge.ErrForfeitNotConfirmed, "FORFEIT_NOT_CONFIRMED"},
	{domainChallenge.ErrChallengeNotActive, "CHALLENGE_NOT_ACTIVE"},
	{domainChallenge.ErrTradeOutsideWindow, "TRADE_OUTSIDE_WINDOW"},
	{domainChallenge.ErrSettlementPending, "SETTLEMENT_PENDING"},
	{domainChallenge.ErrInvalidState, "INVALID_STATE"},
}

func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL_ERROR"
}

func statusForKind(kind domainChallenge.Kind) int {
	switch kind {
	case domainChallenge.KindValidation:
		return http.StatusUnprocessableEntity
	case domainChallenge.KindState:
		return http.StatusConflict
	case domainChallenge.KindNotFound:
		return http.StatusNotFound
	case domainChallenge.KindConcurrency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError maps a service error to its status and code.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domainChallenge.KindOf(err)
	status := statusForKind(kind)
	switch kind {
	case domainChallenge.KindConcurrency:
		w.Header().Set("Retry-After", "1")
	case domainChallenge.KindInvariant, domainChallenge.KindInternal:
		s.logger.Error().
			Err(err).
			Str("request_id", requestID(r)).
			Str("path", r.URL.Path).
			Msg("request failed")
		if kind == domainChallenge.KindInternal {
			respondError(w, status, "INTERNAL_ERROR", "internal error")
			return
		}
	}
	respondError(w, status, errorCode(err), err.Error())
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
