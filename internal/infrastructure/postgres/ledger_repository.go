package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
)

const transactionColumns = `id, transaction_id, user_id, type, amount, balance_after, challenge_id, reference, created_at`

// LedgerRepository implements ledger.Repository.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// LockAccount creates the account row on first use and locks it for the
// transaction in ctx.
func (r *LedgerRepository) LockAccount(ctx context.Context, userID uuid.UUID) (*ledger.Account, error) {
	tx, ok := txFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("lock account: no transaction in context")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO token_accounts (user_id, balance, version, updated_at)
		VALUES ($1, 0, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, err
	}
	row := tx.QueryRow(ctx, `SELECT user_id, balance, version, updated_at FROM token_accounts WHERE user_id=$1 FOR UPDATE`, userID)
	return scanAccount(row)
}

// Append inserts the transaction and writes the new cached balance if the
// account version is unchanged.
func (r *LedgerRepository) Append(ctx context.Context, t *ledger.Transaction, acct *ledger.Account) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE token_accounts SET balance=$1, version=version+1, updated_at=$2
		WHERE user_id=$3 AND version=$4
	`, acct.Balance, acct.UpdatedAt, acct.UserID, acct.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s version %d is stale", txn.ErrConcurrentModification, acct.UserID, acct.Version)
	}
	acct.Version++

	return q.QueryRow(ctx, `
		INSERT INTO token_transactions (transaction_id, user_id, type, amount, balance_after, challenge_id, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, t.TransactionID, t.UserID, t.Type, t.Amount, t.BalanceAfter, t.ChallengeID, t.Reference, t.CreatedAt).Scan(&t.ID)
}

func (r *LedgerRepository) GetAccount(ctx context.Context, userID uuid.UUID) (*ledger.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT user_id, balance, version, updated_at FROM token_accounts WHERE user_id=$1`, userID)
	acct, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return acct, nil
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ledger.Transaction, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM token_transactions WHERE user_id=$1
		ORDER BY id DESC LIMIT $2 OFFSET $3`, userID, limitArg(limit), offset)
}

func (r *LedgerRepository) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]*ledger.Transaction, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM token_transactions WHERE challenge_id=$1 ORDER BY id ASC`, challengeID)
}

func (r *LedgerRepository) SumByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM token_transactions WHERE user_id=$1`, userID).Scan(&total)
	return total, err
}

func (r *LedgerRepository) query(ctx context.Context, query string, args ...interface{}) ([]*ledger.Transaction, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(&t.ID, &t.TransactionID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.ChallengeID, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, &t)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var a ledger.Account
	if err := row.Scan(&a.UserID, &a.Balance, &a.Version, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

var _ ledger.Repository = (*LedgerRepository)(nil)
