package challenge

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
)

// Movement is one ledger entry a settlement produces.
type Movement struct {
	UserID uuid.UUID   `json:"userId"`
	Type   ledger.Type `json:"type"`
	Amount int64       `json:"amount"`
}

// Result is the outcome of a challenge, computed once at finalize and persisted.
type Result struct {
	WinnerID            *uuid.UUID      `json:"winnerId,omitempty"`
	LoserID             *uuid.UUID      `json:"loserId,omitempty"`
	Forfeit             bool            `json:"forfeit"`
	ForfeitedBy         *uuid.UUID      `json:"forfeitedBy,omitempty"`
	ChallengerReturnPct decimal.Decimal `json:"challengerReturnPct"`
	ChallengedReturnPct decimal.Decimal `json:"challengedReturnPct"`
	ChallengerProfit    decimal.Decimal `json:"challengerProfit"`
	ChallengedProfit    decimal.Decimal `json:"challengedProfit"`
	Movements           []Movement      `json:"movements"`
}

// IsTie reports a result with no winner.
func (r *Result) IsTie() bool {
	return r.WinnerID == nil
}

// Settle decides the outcome of c. With forfeitBy set the counterpart of the
// forfeiting participant wins regardless of returns. Otherwise the higher
// unrounded return wins and exactly equal returns are a tie. The winner is paid the
// whole pot; a tie refunds each stake.
func Settle(c *Challenge, challenger, challenged trade.Performance, forfeitBy *uuid.UUID) (*Result, error) {
	r := &Result{
		ChallengerReturnPct: challenger.ReturnPct,
		ChallengedReturnPct: challenged.ReturnPct,
		ChallengerProfit:    challenger.Profit,
		ChallengedProfit:    challenged.Profit,
	}

	var winner, loser uuid.UUID
	switch {
	case forfeitBy != nil:
		other, ok := c.Counterpart(*forfeitBy)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a participant", ErrInvalidParticipant, forfeitBy)
		}
		forfeiter := *forfeitBy
		winner, loser = other, forfeiter
		r.Forfeit = true
		r.ForfeitedBy = &forfeiter
	default:
		switch trade.CompareReturns(challenger, challenged) {
		case 1:
			winner, loser = c.ChallengerID, c.ChallengedID
		case -1:
			winner, loser = c.ChallengedID, c.ChallengerID
		}
	}

	if winner != uuid.Nil {
		r.WinnerID = &winner
		r.LoserID = &loser
	}
	r.Movements = movements(c, r.WinnerID)
	return r, nil
}

func movements(c *Challenge, winnerID *uuid.UUID) []Movement {
	if winnerID != nil {
		return []Movement{{UserID: *winnerID, Type: ledger.TypePayout, Amount: 2 * c.BetAmount}}
	}
	return []Movement{
		{UserID: c.ChallengerID, Type: ledger.TypeRefund, Amount: c.BetAmount},
		{UserID: c.ChallengedID, Type: ledger.TypeRefund, Amount: c.BetAmount},
	}
}
