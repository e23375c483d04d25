package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/domain/trade"
)

// TradeStore is an in-memory implementation of trade.Repository.
type TradeStore struct {
	store *Store
}

// Insert appends a trade. Returns ErrDuplicateTrade if the trade id exists.
func (r *TradeStore) Insert(ctx context.Context, t *trade.Trade) error {
	return r.store.write(ctx, func(st *state) error {
		if _, exists := st.trades[t.TradeID]; exists {
			return trade.ErrDuplicateTrade
		}
		st.tradeSeq++
		t.ID = st.tradeSeq
		cp := *t
		st.trades[t.TradeID] = &cp
		return nil
	})
}

// GetByID returns a trade or nil.
func (r *TradeStore) GetByID(ctx context.Context, tradeID uuid.UUID) (*trade.Trade, error) {
	var out *trade.Trade
	r.store.read(ctx, func(st *state) {
		if t, ok := st.trades[tradeID]; ok {
			cp := *t
			out = &cp
		}
	})
	return out, nil
}

// ListByChallenge returns trades ordered by timestamp ASC.
func (r *TradeStore) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]*trade.Trade, error) {
	return r.list(ctx, func(t *trade.Trade) bool { return t.ChallengeID == challengeID }), nil
}

// ListByParticipant returns one participant's trades ordered by timestamp ASC.
func (r *TradeStore) ListByParticipant(ctx context.Context, challengeID, userID uuid.UUID) ([]*trade.Trade, error) {
	return r.list(ctx, func(t *trade.Trade) bool {
		return t.ChallengeID == challengeID && t.UserID == userID
	}), nil
}

func (r *TradeStore) list(ctx context.Context, match func(*trade.Trade) bool) []*trade.Trade {
	var result []*trade.Trade
	r.store.read(ctx, func(st *state) {
		for _, t := range st.trades {
			if match(t) {
				cp := *t
				result = append(result, &cp)
			}
		}
	})
	trade.SortByTimestamp(result)
	return result
}

var _ trade.Repository = (*TradeStore)(nil)
