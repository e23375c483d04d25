package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/stats"
)

// StatsStore is an in-memory implementation of stats.Repository.
type StatsStore struct {
	store *Store
}

// Leaderboard aggregates completed challenges and challenge-linked ledger entries per user.
func (r *StatsStore) Leaderboard(ctx context.Context, limit int) ([]*stats.LeaderboardEntry, error) {
	byUser := make(map[uuid.UUID]*stats.LeaderboardEntry)
	entry := func(id uuid.UUID) *stats.LeaderboardEntry {
		e, ok := byUser[id]
		if !ok {
			e = &stats.LeaderboardEntry{UserID: id}
			byUser[id] = e
		}
		return e
	}

	r.store.read(ctx, func(st *state) {
		for _, c := range st.challenges {
			if c.Status != challenge.StatusCompleted {
				continue
			}
			if c.WinnerID == nil {
				entry(c.ChallengerID).Ties++
				entry(c.ChallengedID).Ties++
				continue
			}
			entry(*c.WinnerID).Wins++
			entry(*c.LoserID).Losses++
		}
		for _, tx := range st.transactions {
			if tx.ChallengeID == nil {
				continue
			}
			if e, ok := byUser[tx.UserID]; ok {
				e.NetTokens += tx.Amount
			}
		}
	})

	entries := make([]*stats.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, e)
	}
	return page(stats.Rank(entries), limit, 0), nil
}

var _ stats.Repository = (*StatsStore)(nil)
