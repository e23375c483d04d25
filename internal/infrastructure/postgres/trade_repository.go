package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeduel/tradeduel/internal/domain/trade"
)

const tradeColumns = `id, trade_id, challenge_id, user_id, symbol, side, quantity, price, ts, profit, source, created_at`

// TradeRepository implements trade.Repository.
type TradeRepository struct {
	pool *pgxpool.Pool
}

func NewTradeRepository(pool *pgxpool.Pool) *TradeRepository {
	return &TradeRepository{pool: pool}
}

// Insert appends a trade. A repeated trade_id returns trade.ErrDuplicateTrade.
func (r *TradeRepository) Insert(ctx context.Context, t *trade.Trade) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO trades (trade_id, challenge_id, user_id, symbol, side, quantity, price, ts, profit, source, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, t.TradeID, t.ChallengeID, t.UserID, t.Symbol, t.Side, t.Quantity, t.Price, t.Timestamp, t.Profit, t.Source, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", trade.ErrDuplicateTrade, t.TradeID)
		}
		return err
	}
	return nil
}

func (r *TradeRepository) GetByID(ctx context.Context, tradeID uuid.UUID) (*trade.Trade, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id=$1`, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TradeRepository) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]*trade.Trade, error) {
	return r.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE challenge_id=$1 ORDER BY ts ASC, id ASC`, challengeID)
}

func (r *TradeRepository) ListByParticipant(ctx context.Context, challengeID, userID uuid.UUID) ([]*trade.Trade, error) {
	return r.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE challenge_id=$1 AND user_id=$2 ORDER BY ts ASC, id ASC`, challengeID, userID)
}

func (r *TradeRepository) query(ctx context.Context, query string, args ...interface{}) ([]*trade.Trade, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*trade.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(row pgx.Row) (*trade.Trade, error) {
	var t trade.Trade
	if err := row.Scan(&t.ID, &t.TradeID, &t.ChallengeID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &t.Price,
		&t.Timestamp, &t.Profit, &t.Source, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Timestamp = t.Timestamp.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

var _ trade.Repository = (*TradeRepository)(nil)
