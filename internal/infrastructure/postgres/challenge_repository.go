package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
)

const challengeColumns = `id, challenge_id, title, description, type, status, cancel_reason,
	window_start, window_end, duration_seconds, duration_days, bet_amount, initial_balance,
	challenger_id, challenged_id, challenger_bot_id, challenged_bot_id, winner_id, loser_id,
	forfeit, forfeited_by, challenger_return_pct, challenged_return_pct, challenger_profit,
	challenged_profit, version, created_at, accepted_at, completed_at, cancelled_at, updated_at`

// ChallengeRepository implements challenge.Repository.
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge) error {
	c.Version = 1
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO challenges (challenge_id, title, description, type, status, cancel_reason,
			window_start, window_end, duration_seconds, duration_days, bet_amount, initial_balance,
			challenger_id, challenged_id, challenger_bot_id, challenged_bot_id, winner_id, loser_id,
			forfeit, forfeited_by, challenger_return_pct, challenged_return_pct, challenger_profit,
			challenged_profit, version, created_at, accepted_at, completed_at, cancelled_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
		RETURNING id
	`, c.ChallengeID, c.Title, c.Description, c.Type, c.Status, reasonArg(c.CancelReason),
		c.WindowStart, c.WindowEnd, c.DurationSeconds, c.DurationDays, c.BetAmount, c.InitialBalance,
		c.ChallengerID, c.ChallengedID, c.ChallengerBotID, c.ChallengedBotID, c.WinnerID, c.LoserID,
		c.Forfeit, c.ForfeitedBy, decimalArg(c.ChallengerReturnPct), decimalArg(c.ChallengedReturnPct),
		decimalArg(c.ChallengerProfit), decimalArg(c.ChallengedProfit), c.Version,
		c.CreatedAt, c.AcceptedAt, c.CompletedAt, c.CancelledAt, c.UpdatedAt)
	return row.Scan(&c.ID)
}

func (r *ChallengeRepository) GetByID(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE challenge_id=$1`, challengeID)
	c, err := scanChallenge(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// GetForUpdate takes the row lock for the transaction in ctx.
func (r *ChallengeRepository) GetForUpdate(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	tx, ok := txFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("get challenge for update: no transaction in context")
	}
	row := tx.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE challenge_id=$1 FOR UPDATE`, challengeID)
	c, err := scanChallenge(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *ChallengeRepository) Update(ctx context.Context, c *challenge.Challenge) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE challenges SET
			title=$1, description=$2, status=$3, cancel_reason=$4, window_start=$5, window_end=$6,
			duration_seconds=$7, duration_days=$8, challenged_bot_id=$9, winner_id=$10, loser_id=$11,
			forfeit=$12, forfeited_by=$13, challenger_return_pct=$14, challenged_return_pct=$15,
			challenger_profit=$16, challenged_profit=$17, accepted_at=$18, completed_at=$19,
			cancelled_at=$20, updated_at=$21, version=version+1
		WHERE challenge_id=$22 AND version=$23
	`, c.Title, c.Description, c.Status, reasonArg(c.CancelReason), c.WindowStart, c.WindowEnd,
		c.DurationSeconds, c.DurationDays, c.ChallengedBotID, c.WinnerID, c.LoserID,
		c.Forfeit, c.ForfeitedBy, decimalArg(c.ChallengerReturnPct), decimalArg(c.ChallengedReturnPct),
		decimalArg(c.ChallengerProfit), decimalArg(c.ChallengedProfit), c.AcceptedAt, c.CompletedAt,
		c.CancelledAt, c.UpdatedAt, c.ChallengeID, c.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: challenge %s version %d is stale", txn.ErrConcurrentModification, c.ChallengeID, c.Version)
	}
	c.Version++
	return nil
}

func (r *ChallengeRepository) ListForUser(ctx context.Context, userID uuid.UUID, filter challenge.Filter) ([]*challenge.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE (challenger_id=$1 OR challenged_id=$1)`
	args := []interface{}{userID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND type=$%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limitArg(filter.Limit), filter.Offset)
	return r.query(ctx, query, args...)
}

func (r *ChallengeRepository) ListByStatus(ctx context.Context, status challenge.Status, limit, offset int) ([]*challenge.Challenge, error) {
	return r.query(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE status=$1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, status, limitArg(limit), offset)
}

func (r *ChallengeRepository) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*challenge.Challenge, error) {
	return r.query(ctx, `SELECT `+challengeColumns+` FROM challenges
		WHERE status=$1 AND window_start <= $2 ORDER BY window_start ASC LIMIT $3`,
		challenge.StatusPending, now, limitArg(limit))
}

func (r *ChallengeRepository) ListActiveEnded(ctx context.Context, endedBy time.Time, limit int) ([]*challenge.Challenge, error) {
	return r.query(ctx, `SELECT `+challengeColumns+` FROM challenges
		WHERE status=$1 AND window_end <= $2 ORDER BY window_end ASC LIMIT $3`,
		challenge.StatusActive, endedBy, limitArg(limit))
}

func (r *ChallengeRepository) query(ctx context.Context, query string, args ...interface{}) ([]*challenge.Challenge, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var c challenge.Challenge
	var reason *string
	var challengerReturn, challengedReturn, challengerProfit, challengedProfit decimal.NullDecimal
	if err := row.Scan(&c.ID, &c.ChallengeID, &c.Title, &c.Description, &c.Type, &c.Status, &reason,
		&c.WindowStart, &c.WindowEnd, &c.DurationSeconds, &c.DurationDays, &c.BetAmount, &c.InitialBalance,
		&c.ChallengerID, &c.ChallengedID, &c.ChallengerBotID, &c.ChallengedBotID, &c.WinnerID, &c.LoserID,
		&c.Forfeit, &c.ForfeitedBy, &challengerReturn, &challengedReturn, &challengerProfit,
		&challengedProfit, &c.Version, &c.CreatedAt, &c.AcceptedAt, &c.CompletedAt, &c.CancelledAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if reason != nil {
		cr := challenge.CancelReason(*reason)
		c.CancelReason = &cr
	}
	c.ChallengerReturnPct = decimalPtr(challengerReturn)
	c.ChallengedReturnPct = decimalPtr(challengedReturn)
	c.ChallengerProfit = decimalPtr(challengerProfit)
	c.ChallengedProfit = decimalPtr(challengedProfit)
	c.WindowStart = c.WindowStart.UTC()
	c.WindowEnd = c.WindowEnd.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func reasonArg(r *challenge.CancelReason) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func decimalArg(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// limitArg turns a non-positive limit into NULL, which Postgres reads as LIMIT ALL.
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

var _ challenge.Repository = (*ChallengeRepository)(nil)
