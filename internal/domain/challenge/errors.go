package challenge

import (
	"errors"
	"fmt"

	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
)

var (
	ErrInvalidWindow          = errors.New("invalid challenge window")
	ErrInvalidParticipant     = errors.New("invalid participant")
	ErrInvalidBet             = errors.New("invalid bet amount")
	ErrInvalidBalance         = errors.New("initial balance must be positive")
	ErrInvalidTrade           = trade.ErrInvalidTrade
	ErrInvalidState           = errors.New("invalid challenge state")
	ErrChallengeNotActive     = errors.New("challenge is not active")
	ErrTradeOutsideWindow     = errors.New("trade timestamp outside challenge window")
	ErrSettlementPending      = errors.New("challenge window ended, settlement buffer not elapsed")
	ErrForfeitNotConfirmed    = errors.New("early finalize forfeits the challenge and must be confirmed")
	ErrNotFound               = errors.New("challenge not found")
	ErrConcurrentModification = txn.ErrConcurrentModification
	ErrInvariantViolation     = errors.New("invariant violation")

	// ErrChallengeExpired is the state error for a response after the deadline.
	ErrChallengeExpired = fmt.Errorf("%w: challenge expired", ErrInvalidState)
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindState       Kind = "STATE"
	KindConcurrency Kind = "CONCURRENCY"
	KindInvariant   Kind = "INVARIANT"
	KindNotFound    Kind = "NOT_FOUND"
	KindInternal    Kind = "INTERNAL"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvariantViolation), errors.Is(err, ledger.ErrBalanceMismatch):
		return KindInvariant
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrency
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrChallengeNotActive),
		errors.Is(err, ErrTradeOutsideWindow),
		errors.Is(err, ErrSettlementPending):
		return KindState
	case errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrInvalidParticipant),
		errors.Is(err, ErrInvalidBet),
		errors.Is(err, ErrInvalidBalance),
		errors.Is(err, ErrInvalidTrade),
		errors.Is(err, ErrForfeitNotConfirmed),
		errors.Is(err, trade.ErrExceedsPosition),
		errors.Is(err, ledger.ErrInsufficientTokens),
		errors.Is(err, ledger.ErrInvalidAmount):
		return KindValidation
	default:
		return KindInternal
	}
}
