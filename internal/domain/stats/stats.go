package stats

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/ledger"
)

// UserStats is a read-only projection over challenge history and the token ledger.
type UserStats struct {
	UserID          uuid.UUID       `json:"userId"`
	TokenBalance    int64           `json:"tokenBalance"`
	TotalChallenges int             `json:"totalChallenges"`
	Active          int             `json:"active"`
	Pending         int             `json:"pending"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	Ties            int             `json:"ties"`
	Forfeits        int             `json:"forfeits"`
	WinRate         decimal.Decimal `json:"winRate"`
	TokensStaked    int64           `json:"tokensStaked"`
	TokensWon       int64           `json:"tokensWon"`
	TokensRefunded  int64           `json:"tokensRefunded"`
	NetTokens       int64           `json:"netTokens"`
	ComputedAt      time.Time       `json:"computedAt"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank      int       `json:"rank"`
	UserID    uuid.UUID `json:"userId"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Ties      int       `json:"ties"`
	NetTokens int64     `json:"netTokens"`
}

// Compute folds a user's challenges and ledger entries into UserStats.
// NetTokens counts only challenge-linked entries, so credits are excluded.
func Compute(userID uuid.UUID, balance int64, challenges []*challenge.Challenge, txs []*ledger.Transaction, now time.Time) *UserStats {
	s := &UserStats{UserID: userID, TokenBalance: balance, WinRate: decimal.Zero, ComputedAt: now.UTC()}
	for _, c := range challenges {
		if !c.IsParticipant(userID) {
			continue
		}
		s.TotalChallenges++
		switch c.Status {
		case challenge.StatusPending:
			s.Pending++
		case challenge.StatusActive:
			s.Active++
		case challenge.StatusCompleted:
			switch {
			case c.WinnerID == nil:
				s.Ties++
			case *c.WinnerID == userID:
				s.Wins++
			default:
				s.Losses++
				if c.Forfeit && c.ForfeitedBy != nil && *c.ForfeitedBy == userID {
					s.Forfeits++
				}
			}
		}
	}
	for _, tx := range txs {
		if tx.UserID != userID || tx.ChallengeID == nil {
			continue
		}
		switch tx.Type {
		case ledger.TypeEscrow:
			s.TokensStaked += -tx.Amount
		case ledger.TypePayout:
			s.TokensWon += tx.Amount
		case ledger.TypeRefund:
			s.TokensRefunded += tx.Amount
		}
		s.NetTokens += tx.Amount
	}
	if decided := s.Wins + s.Losses + s.Ties; decided > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(decided))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	return s
}

// Rank orders entries by wins, then net tokens, then user id, and assigns ranks from 1.
func Rank(entries []*LeaderboardEntry) []*LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.NetTokens != b.NetTokens {
			return a.NetTokens > b.NetTokens
		}
		return a.UserID.String() < b.UserID.String()
	})
	for i, e := range entries {
		e.Rank = i + 1
	}
	return entries
}

// Repository aggregates leaderboard rows from storage.
type Repository interface {
	Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)
}
