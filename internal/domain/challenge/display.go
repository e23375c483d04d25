package challenge

import (
	"time"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/window"
)

// Display is the status shown to clients. It extends Status with states
// derived from the window evaluator and is never persisted.
type Display string

const (
	DisplayPending        Display = "PENDING"
	DisplayExpiredPending Display = "EXPIRED_PENDING"
	DisplayWaitingStart   Display = "WAITING_START"
	DisplayActive         Display = "ACTIVE"
	DisplayAwaitingSettle Display = "AWAITING_SETTLEMENT"
	DisplayCompleted      Display = "COMPLETED"
	DisplayCancelled      Display = "CANCELLED"
)

// DisplayStatus derives the display status of c at now.
func DisplayStatus(c *Challenge, now time.Time) Display {
	phase := c.Window().Classify(now)
	switch c.Status {
	case StatusPending:
		if phase != window.PhaseBeforeStart {
			return DisplayExpiredPending
		}
		return DisplayPending
	case StatusActive:
		switch phase {
		case window.PhaseBeforeStart:
			if c.Type == TypeBotDuel {
				return DisplayWaitingStart
			}
			return DisplayActive
		case window.PhaseInWindow:
			return DisplayActive
		default:
			return DisplayAwaitingSettle
		}
	case StatusCompleted:
		return DisplayCompleted
	default:
		return DisplayCancelled
	}
}

// Standings is the live view of a challenge for both participants.
type Standings struct {
	ChallengeID      uuid.UUID         `json:"challengeId"`
	Status           Status            `json:"status"`
	DisplayStatus    Display           `json:"displayStatus"`
	Phase            window.Phase      `json:"phase"`
	RemainingSeconds int64             `json:"remainingSeconds"`
	StartsInSeconds  int64             `json:"startsInSeconds"`
	Challenger       trade.Performance `json:"challenger"`
	Challenged       trade.Performance `json:"challenged"`
	LeaderID         *uuid.UUID        `json:"leaderId,omitempty"`
	Result           *Result           `json:"result,omitempty"`
	AsOf             time.Time         `json:"asOf"`
}

// BuildStandings folds trades into both participants' standings at now.
// Completed challenges carry their stored result; the leader is never re-derived for them.
func BuildStandings(c *Challenge, trades []*trade.Trade, now time.Time) *Standings {
	w := c.Window()
	s := &Standings{
		ChallengeID:      c.ChallengeID,
		Status:           c.Status,
		DisplayStatus:    DisplayStatus(c, now),
		Phase:            w.Classify(now),
		RemainingSeconds: int64(w.Remaining(now) / time.Second),
		StartsInSeconds:  int64(w.UntilStart(now) / time.Second),
		Challenger:       trade.Evaluate(c.ChallengerID, c.InitialBalance, trades),
		Challenged:       trade.Evaluate(c.ChallengedID, c.InitialBalance, trades),
		AsOf:             now.UTC(),
	}
	if c.Status == StatusCompleted {
		s.Result = c.StoredResult()
		s.LeaderID = c.WinnerID
		return s
	}
	switch trade.CompareReturns(s.Challenger, s.Challenged) {
	case 1:
		id := c.ChallengerID
		s.LeaderID = &id
	case -1:
		id := c.ChallengedID
		s.LeaderID = &id
	}
	return s
}
