package sweeper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appChallenge "github.com/tradeduel/tradeduel/internal/application/challenge"
	appLedger "github.com/tradeduel/tradeduel/internal/application/ledger"
	"github.com/tradeduel/tradeduel/internal/clock"
	domainChallenge "github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/window"
	"github.com/tradeduel/tradeduel/internal/infrastructure/cache"
	"github.com/tradeduel/tradeduel/internal/infrastructure/memory"
)

type mockChallenges struct {
	mock.Mock
}

func (m *mockChallenges) Expire(ctx context.Context, id uuid.UUID) (*domainChallenge.Challenge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainChallenge.Challenge), args.Error(1)
}

func (m *mockChallenges) Finalize(ctx context.Context, id, requestedBy uuid.UUID, opts appChallenge.FinalizeOptions) (*domainChallenge.Challenge, error) {
	args := m.Called(ctx, id, requestedBy, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainChallenge.Challenge), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordSweep(job, result string) {
	m.Called(job, result)
}

func (m *mockRecorder) RecordSweepDuration(job string, seconds float64) {
	m.Called(job, seconds)
}

type env struct {
	ctx        context.Context
	clock      *clock.Fake
	store      *memory.Store
	ledger     *appLedger.Service
	challenges *appChallenge.Service
	sweeper    *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ctx:   context.Background(),
		clock: clock.NewFake(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)),
		store: memory.NewStore(time.Second),
	}
	logger := zerolog.Nop()
	e.ledger = appLedger.NewService(e.store.Ledger(), e.store, e.clock, logger)
	e.challenges = appChallenge.NewService(e.store.Challenges(), e.store.Trades(), e.ledger, e.store, nil, e.clock,
		appChallenge.Options{MinBet: 10, PendingTTL: 24 * time.Hour}, nil, logger)
	e.sweeper = NewService(e.store.Challenges(), e.challenges, cache.NewMemoryCache(), e.clock,
		Config{PendingInterval: 5 * time.Minute, ActiveInterval: time.Minute, BatchSize: 10}, nil, logger)
	return e
}

func (e *env) create(t *testing.T, startIn time.Duration) (*domainChallenge.Challenge, uuid.UUID, uuid.UUID) {
	t.Helper()
	a, b := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{a, b} {
		_, err := e.ledger.Credit(e.ctx, u, 500, "")
		require.NoError(t, err)
	}
	now := e.clock.Now()
	c, err := e.challenges.Create(e.ctx, appChallenge.CreateInput{
		Type:         domainChallenge.TypeBotDuel,
		ChallengerID: a,
		ChallengedID: b,
		BetAmount:    50,
		Window:       window.New(now.Add(startIn), now.Add(startIn+time.Hour)),
	})
	require.NoError(t, err)
	return c, a, b
}

func TestExpirePendingRefundsUnanswered(t *testing.T) {
	e := newEnv(t)
	c, challenger, _ := e.create(t, 2*time.Hour)
	later, _, _ := e.create(t, 5*time.Hour)

	n, err := e.sweeper.ExpirePending(e.ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(2*time.Hour + time.Minute)
	n, err = e.sweeper.ExpirePending(e.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.challenges.Get(e.ctx, c.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, domainChallenge.StatusCancelled, got.Status)
	assert.Equal(t, domainChallenge.ReasonExpiredUnanswered, *got.CancelReason)
	acct, err := e.ledger.Balance(e.ctx, challenger)
	require.NoError(t, err)
	assert.Equal(t, int64(500), acct.Balance)

	still, err := e.challenges.Get(e.ctx, later.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, domainChallenge.StatusPending, still.Status)

	// a second pass finds nothing left to do
	n, err = e.sweeper.ExpirePending(e.ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSettleEndedWaitsForBuffer(t *testing.T) {
	e := newEnv(t)
	c, _, challenged := e.create(t, time.Hour)
	c, err := e.challenges.Respond(e.ctx, c.ChallengeID, challenged, true, appChallenge.RespondOptions{})
	require.NoError(t, err)

	e.clock.Set(c.WindowEnd.Add(10 * time.Second))
	n, err := e.sweeper.SettleEnded(e.ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Set(c.WindowEnd.Add(window.Buffer))
	n, err = e.sweeper.SettleEnded(e.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.challenges.Get(e.ctx, c.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, domainChallenge.StatusCompleted, got.Status)
	assert.True(t, got.IsTie())
	assert.False(t, got.Forfeit)
}

func TestRunOnceRespectsLease(t *testing.T) {
	e := newEnv(t)
	locker := cache.NewMemoryCache()
	e.sweeper.locker = locker
	c, _, _ := e.create(t, time.Hour)
	e.clock.Advance(2 * time.Hour)

	held, err := locker.TryLock(e.ctx, cache.Key("sweeper", JobPending), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	e.sweeper.RunOnce(e.ctx, JobPending, time.Minute)
	got, err := e.challenges.Get(e.ctx, c.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, domainChallenge.StatusPending, got.Status)

	require.NoError(t, locker.Unlock(e.ctx, cache.Key("sweeper", JobPending)))
	e.sweeper.RunOnce(e.ctx, JobPending, time.Minute)
	got, err = e.challenges.Get(e.ctx, c.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, domainChallenge.StatusCancelled, got.Status)
}

func TestHandleClassifiesErrors(t *testing.T) {
	store := memory.NewStore(time.Second)
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, store.Challenges().Create(ctx, &domainChallenge.Challenge{
			ChallengeID:  id,
			Type:         domainChallenge.TypeBotDuel,
			Status:       domainChallenge.StatusPending,
			ChallengerID: uuid.New(),
			ChallengedID: uuid.New(),
			WindowStart:  clk.Now().Add(-time.Hour),
			WindowEnd:    clk.Now(),
			CreatedAt:    clk.Now(),
		}))
	}

	challenges := &mockChallenges{}
	challenges.On("Expire", mock.Anything, ids[0]).Return(&domainChallenge.Challenge{}, nil)
	challenges.On("Expire", mock.Anything, ids[1]).Return(nil, fmt.Errorf("x: %w", domainChallenge.ErrInvalidState))
	challenges.On("Expire", mock.Anything, ids[2]).Return(nil, domainChallenge.ErrConcurrentModification)
	challenges.On("Expire", mock.Anything, ids[3]).Return(nil, fmt.Errorf("refund: %w", domainChallenge.ErrInvariantViolation)).Once()

	recorder := &mockRecorder{}
	recorder.On("RecordSweep", JobPending, "ok").Return()
	recorder.On("RecordSweep", JobPending, "skipped").Return()
	recorder.On("RecordSweep", JobPending, "retry").Return()
	recorder.On("RecordSweep", JobPending, "halted").Return()

	s := NewService(store.Challenges(), challenges, nil, clk, Config{}, recorder, zerolog.Nop())
	n, err := s.ExpirePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{ids[3]}, s.Halted())

	// halted challenges are skipped on later passes
	_, err = s.ExpirePending(ctx, 10)
	require.NoError(t, err)
	challenges.AssertNumberOfCalls(t, "Expire", 7)
	recorder.AssertCalled(t, "RecordSweep", JobPending, "halted")

	s.Release(ids[3])
	assert.Empty(t, s.Halted())
}

func TestRunStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	e.sweeper.cfg.PendingInterval = time.Millisecond
	e.sweeper.cfg.ActiveInterval = time.Millisecond

	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	go func() {
		e.sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
