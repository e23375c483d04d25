//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
	"github.com/tradeduel/tradeduel/internal/domain/window"
)

var t0 = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newChallenge(t *testing.T, a, b uuid.UUID) *challenge.Challenge {
	t.Helper()
	c, err := challenge.New(challenge.NewParams{
		Type:           challenge.TypeBotDuel,
		ChallengerID:   a,
		ChallengedID:   b,
		BetAmount:      100,
		InitialBalance: decimal.NewFromInt(1000),
		Window:         window.New(t0.Add(time.Hour), t0.Add(3*time.Hour)),
	}, challenge.Limits{MinBet: 10, PendingTTL: 24 * time.Hour}, t0)
	require.NoError(t, err)
	return c
}

func TestRepositories(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	tx := NewTxManager(pool, 200*time.Millisecond)
	challenges := NewChallengeRepository(pool)
	trades := NewTradeRepository(pool)
	accounts := NewLedgerRepository(pool)
	leaderboard := NewStatsRepository(pool)

	alice, bob := uuid.New(), uuid.New()

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, pool, findProjectRoot(t)+"/internal/migrations"))
	})

	t.Run("ledger append and fold", func(t *testing.T) {
		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			for _, u := range []uuid.UUID{alice, bob} {
				acct, err := accounts.LockAccount(ctx, u)
				if err != nil {
					return err
				}
				entry, err := ledger.NewTransaction(acct, ledger.TypeCredit, 1000, nil, t0)
				if err != nil {
					return err
				}
				if err := accounts.Append(ctx, entry, acct); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		acct, err := accounts.GetAccount(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), acct.Balance)
		assert.Equal(t, int64(1), acct.Version)
		sum, err := accounts.SumByUser(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), sum)

		missing, err := accounts.GetAccount(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("lock requires a transaction", func(t *testing.T) {
		_, err := accounts.LockAccount(ctx, alice)
		assert.Error(t, err)
		_, err = challenges.GetForUpdate(ctx, uuid.New())
		assert.Error(t, err)
	})

	t.Run("failed transaction rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			acct, err := accounts.LockAccount(ctx, alice)
			require.NoError(t, err)
			entry, err := ledger.NewTransaction(acct, ledger.TypeEscrow, 100, nil, t0)
			require.NoError(t, err)
			require.NoError(t, accounts.Append(ctx, entry, acct))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		acct, err := accounts.GetAccount(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), acct.Balance)
	})

	c := newChallenge(t, alice, bob)

	t.Run("challenge create, lock and versioned update", func(t *testing.T) {
		require.NoError(t, challenges.Create(ctx, c))
		assert.NotZero(t, c.ID)

		got, err := challenges.GetByID(ctx, c.ChallengeID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, challenge.StatusPending, got.Status)
		assert.True(t, got.InitialBalance.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, c.WindowEnd, got.WindowEnd)

		stale := *got
		err = tx.WithinTx(ctx, func(ctx context.Context) error {
			locked, err := challenges.GetForUpdate(ctx, c.ChallengeID)
			if err != nil {
				return err
			}
			if err := locked.Activate(nil, t0.Add(time.Minute)); err != nil {
				return err
			}
			return challenges.Update(ctx, locked)
		})
		require.NoError(t, err)

		stale.Title = "late writer"
		err = challenges.Update(ctx, &stale)
		assert.ErrorIs(t, err, txn.ErrConcurrentModification)

		got, err = challenges.GetByID(ctx, c.ChallengeID)
		require.NoError(t, err)
		assert.Equal(t, challenge.StatusActive, got.Status)
		assert.Equal(t, int64(2), got.Version)

		due, err := challenges.ListActiveEnded(ctx, c.WindowEnd, 10)
		require.NoError(t, err)
		assert.Len(t, due, 1)
		due, err = challenges.ListActiveEnded(ctx, c.WindowEnd.Add(-time.Second), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		active := challenge.StatusActive
		mine, err := challenges.ListForUser(ctx, bob, challenge.Filter{Status: &active})
		require.NoError(t, err)
		assert.Len(t, mine, 1)
	})

	t.Run("row lock contention is retryable", func(t *testing.T) {
		holding := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- tx.WithinTx(ctx, func(ctx context.Context) error {
				if _, err := challenges.GetForUpdate(ctx, c.ChallengeID); err != nil {
					return err
				}
				close(holding)
				<-release
				return nil
			})
		}()
		<-holding

		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := challenges.GetForUpdate(ctx, c.ChallengeID)
			return err
		})
		assert.ErrorIs(t, err, txn.ErrConcurrentModification)
		close(release)
		require.NoError(t, <-done)
	})

	t.Run("trade dedupe by id", func(t *testing.T) {
		tr := &trade.Trade{
			TradeID:     uuid.New(),
			ChallengeID: c.ChallengeID,
			UserID:      alice,
			Symbol:      "BTCUSDT",
			Side:        trade.SideBuy,
			Quantity:    decimal.RequireFromString("0.5"),
			Price:       decimal.NewFromInt(60000),
			Timestamp:   t0.Add(90 * time.Minute),
			Profit:      decimal.Zero,
			Source:      trade.SourceManual,
			CreatedAt:   t0.Add(90 * time.Minute),
		}
		require.NoError(t, trades.Insert(ctx, tr))
		dup := *tr
		assert.ErrorIs(t, trades.Insert(ctx, &dup), trade.ErrDuplicateTrade)

		list, err := trades.ListByParticipant(ctx, c.ChallengeID, alice)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Quantity.Equal(decimal.RequireFromString("0.5")))
	})

	t.Run("leaderboard", func(t *testing.T) {
		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			locked, err := challenges.GetForUpdate(ctx, c.ChallengeID)
			if err != nil {
				return err
			}
			winner, loser := alice, bob
			pct := decimal.RequireFromString("1.5")
			if err := locked.Complete(&challenge.Result{
				WinnerID:            &winner,
				LoserID:             &loser,
				ChallengerReturnPct: pct,
				ChallengedReturnPct: decimal.Zero,
				ChallengerProfit:    decimal.NewFromInt(15),
				ChallengedProfit:    decimal.Zero,
			}, t0.Add(4*time.Hour)); err != nil {
				return err
			}
			return challenges.Update(ctx, locked)
		})
		require.NoError(t, err)

		board, err := leaderboard.Leaderboard(ctx, 10)
		require.NoError(t, err)
		require.Len(t, board, 2)
		assert.Equal(t, alice, board[0].UserID)
		assert.Equal(t, 1, board[0].Rank)
		assert.Equal(t, 1, board[0].Wins)
		assert.Equal(t, 1, board[1].Losses)

		got, err := challenges.GetByID(ctx, c.ChallengeID)
		require.NoError(t, err)
		require.NotNil(t, got.ChallengerReturnPct)
		assert.True(t, got.ChallengerReturnPct.Equal(decimal.RequireFromString("1.5")))
		assert.Nil(t, got.CancelReason)
	})
}
