package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeduel/tradeduel/internal/domain/stats"
)

// StatsRepository implements stats.Repository.
type StatsRepository struct {
	pool *pgxpool.Pool
}

func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// Leaderboard ranks users that took part in at least one completed challenge.
func (r *StatsRepository) Leaderboard(ctx context.Context, limit int) ([]*stats.LeaderboardEntry, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		WITH seats AS (
			SELECT challenger_id AS user_id, winner_id FROM challenges WHERE status = 'COMPLETED'
			UNION ALL
			SELECT challenged_id AS user_id, winner_id FROM challenges WHERE status = 'COMPLETED'
		), results AS (
			SELECT user_id,
				COUNT(*) FILTER (WHERE winner_id = user_id) AS wins,
				COUNT(*) FILTER (WHERE winner_id IS NOT NULL AND winner_id <> user_id) AS losses,
				COUNT(*) FILTER (WHERE winner_id IS NULL) AS ties
			FROM seats
			GROUP BY user_id
		)
		SELECT r.user_id, r.wins, r.losses, r.ties,
			COALESCE((SELECT SUM(t.amount) FROM token_transactions t
				WHERE t.user_id = r.user_id AND t.challenge_id IS NOT NULL), 0)::BIGINT AS net_tokens
		FROM results r
		ORDER BY r.wins DESC, net_tokens DESC, r.user_id::text ASC
		LIMIT $1
	`, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*stats.LeaderboardEntry
	for rows.Next() {
		var e stats.LeaderboardEntry
		var wins, losses, ties int64
		if err := rows.Scan(&e.UserID, &wins, &losses, &ties, &e.NetTokens); err != nil {
			return nil, err
		}
		e.Wins, e.Losses, e.Ties = int(wins), int(losses), int(ties)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats.Rank(out), nil
}

var _ stats.Repository = (*StatsRepository)(nil)
