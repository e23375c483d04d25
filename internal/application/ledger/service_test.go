package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tradeduel/tradeduel/internal/clock"
	domainLedger "github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/ledger/mocks"
	"github.com/tradeduel/tradeduel/internal/infrastructure/memory"
)

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newMemoryService() *Service {
	store := memory.NewStore(time.Second)
	return NewService(store.Ledger(), store, clock.NewFake(testNow), zerolog.Nop())
}

func TestEscrowRefundPayout(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryService()
	user := uuid.New()
	challengeID := uuid.New()

	credit, err := svc.Credit(ctx, user, 1000, "signup")
	require.NoError(t, err)
	assert.Equal(t, domainLedger.TypeCredit, credit.Type)
	require.NotNil(t, credit.Reference)
	assert.Equal(t, "signup", *credit.Reference)

	balance, err := svc.Escrow(ctx, user, 300, challengeID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)

	balance, err = svc.Payout(ctx, user, 600, challengeID)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), balance)

	balance, err = svc.Refund(ctx, user, 100, challengeID)
	require.NoError(t, err)
	assert.Equal(t, int64(1400), balance)

	entries, err := svc.ChallengeEntries(ctx, challengeID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, int64(400), domainLedger.Net(entries, challengeID))

	history, err := svc.History(ctx, user, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	rec, err := svc.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, int64(1400), rec.Folded)
}

func TestEscrowInsufficientTokensLeavesBalance(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryService()
	user := uuid.New()

	_, err := svc.Credit(ctx, user, 50, "")
	require.NoError(t, err)

	_, err = svc.Escrow(ctx, user, 51, uuid.New())
	assert.ErrorIs(t, err, domainLedger.ErrInsufficientTokens)

	acct, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(50), acct.Balance)

	history, err := svc.History(ctx, user, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryService()
	user := uuid.New()

	_, err := svc.Credit(ctx, user, 0, "")
	assert.ErrorIs(t, err, domainLedger.ErrInvalidAmount)
	_, err = svc.Escrow(ctx, user, -5, uuid.New())
	assert.ErrorIs(t, err, domainLedger.ErrInvalidAmount)
}

func TestBalanceOfUnknownUser(t *testing.T) {
	svc := newMemoryService()
	user := uuid.New()

	acct, err := svc.Balance(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, user, acct.UserID)
	assert.Zero(t, acct.Balance)
}

func TestLockAccountsSortsIDs(t *testing.T) {
	repo := &mocks.MockRepository{}
	svc := NewService(repo, inlineTx{}, clock.NewFake(testNow), zerolog.Nop())

	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	var order []uuid.UUID
	repo.On("LockAccount", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.Get(1).(uuid.UUID)) }).
		Return(&domainLedger.Account{}, nil)

	require.NoError(t, svc.LockAccounts(context.Background(), b, a))
	assert.Equal(t, []uuid.UUID{a, b}, order)
}

func TestReconcileMismatch(t *testing.T) {
	repo := &mocks.MockRepository{}
	svc := NewService(repo, inlineTx{}, clock.NewFake(testNow), zerolog.Nop())
	user := uuid.New()

	repo.On("GetAccount", mock.Anything, user).Return(&domainLedger.Account{UserID: user, Balance: 900}, nil)
	repo.On("SumByUser", mock.Anything, user).Return(int64(850), nil)

	rec, err := svc.Reconcile(context.Background(), user)
	assert.ErrorIs(t, err, domainLedger.ErrBalanceMismatch)
	require.NotNil(t, rec)
	assert.False(t, rec.Consistent)
	assert.Equal(t, int64(900), rec.Cached)
	assert.Equal(t, int64(850), rec.Folded)
	repo.AssertExpectations(t)
}

func TestApplyPropagatesAppendFailure(t *testing.T) {
	repo := &mocks.MockRepository{}
	svc := NewService(repo, inlineTx{}, clock.NewFake(testNow), zerolog.Nop())
	user := uuid.New()
	boom := errors.New("disk full")

	repo.On("LockAccount", mock.Anything, user).Return(&domainLedger.Account{UserID: user, Balance: 100, Version: 3}, nil)
	repo.On("Append", mock.Anything, mock.AnythingOfType("*ledger.Transaction"), mock.AnythingOfType("*ledger.Account")).Return(boom)

	_, err := svc.Escrow(context.Background(), user, 10, uuid.New())
	assert.ErrorIs(t, err, boom)
	repo.AssertExpectations(t)
}
