package stats

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/ledger"
)

func TestCompute(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	won, lost, tied, pending := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	challenges := []*challenge.Challenge{
		{ChallengeID: won, Status: challenge.StatusCompleted, ChallengerID: me, ChallengedID: other, WinnerID: &me, LoserID: &other},
		{ChallengeID: lost, Status: challenge.StatusCompleted, ChallengerID: other, ChallengedID: me, WinnerID: &other, LoserID: &me, Forfeit: true, ForfeitedBy: &me},
		{ChallengeID: tied, Status: challenge.StatusCompleted, ChallengerID: me, ChallengedID: other},
		{ChallengeID: pending, Status: challenge.StatusPending, ChallengerID: me, ChallengedID: other},
		{ChallengeID: uuid.New(), Status: challenge.StatusActive, ChallengerID: uuid.New(), ChallengedID: other},
	}
	txs := []*ledger.Transaction{
		{UserID: me, Type: ledger.TypeCredit, Amount: 1000},
		{UserID: me, Type: ledger.TypeEscrow, Amount: -50, ChallengeID: &won},
		{UserID: me, Type: ledger.TypePayout, Amount: 100, ChallengeID: &won},
		{UserID: me, Type: ledger.TypeEscrow, Amount: -20, ChallengeID: &lost},
		{UserID: me, Type: ledger.TypeEscrow, Amount: -30, ChallengeID: &tied},
		{UserID: me, Type: ledger.TypeRefund, Amount: 30, ChallengeID: &tied},
		{UserID: me, Type: ledger.TypeEscrow, Amount: -10, ChallengeID: &pending},
	}

	s := Compute(me, 1020, challenges, txs, time.Now())
	assert.Equal(t, 4, s.TotalChallenges)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.Ties)
	assert.Equal(t, 1, s.Forfeits)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 0, s.Active)
	assert.True(t, s.WinRate.Equal(decimal.RequireFromString("33.33")), s.WinRate.String())
	assert.Equal(t, int64(110), s.TokensStaked)
	assert.Equal(t, int64(100), s.TokensWon)
	assert.Equal(t, int64(30), s.TokensRefunded)
	assert.Equal(t, int64(20), s.NetTokens)
	assert.Equal(t, int64(1020), s.TokenBalance)
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(uuid.New(), 0, nil, nil, time.Now())
	assert.Equal(t, 0, s.TotalChallenges)
	assert.True(t, s.WinRate.IsZero())
}

func TestRank(t *testing.T) {
	a := &LeaderboardEntry{UserID: uuid.New(), Wins: 3, NetTokens: 10}
	b := &LeaderboardEntry{UserID: uuid.New(), Wins: 3, NetTokens: 90}
	c := &LeaderboardEntry{UserID: uuid.New(), Wins: 5, NetTokens: -10}

	ranked := Rank([]*LeaderboardEntry{a, b, c})
	assert.Equal(t, []*LeaderboardEntry{c, b, a}, ranked)
	assert.Equal(t, 1, c.Rank)
	assert.Equal(t, 2, b.Rank)
	assert.Equal(t, 3, a.Rank)
}
