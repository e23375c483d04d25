package challenge

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/window"
)

var (
	now    = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limits = Limits{MinBet: 10, PendingTTL: 24 * time.Hour}
)

func botParams() NewParams {
	return NewParams{
		Type:         TypeBotDuel,
		ChallengerID: uuid.New(),
		ChallengedID: uuid.New(),
		BetAmount:    50,
		Window:       window.New(now.Add(2*time.Hour), now.Add(3*time.Hour)),
	}
}

func manualParams() NewParams {
	return NewParams{
		Type:         TypeManualTrading,
		ChallengerID: uuid.New(),
		ChallengedID: uuid.New(),
		BetAmount:    50,
		Duration:     time.Hour,
	}
}

func TestNewBotDuel(t *testing.T) {
	c, err := New(botParams(), limits, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, c.Status)
	assert.NotEqual(t, uuid.Nil, c.ChallengeID)
	assert.True(t, c.InitialBalance.Equal(DefaultInitialBalance))
	assert.Equal(t, int64(3600), c.DurationSeconds)
	assert.Equal(t, 1, c.DurationDays)
	assert.Equal(t, "50 token duel", c.Title)
}

func TestNewManualUsesResponseDeadline(t *testing.T) {
	c, err := New(manualParams(), limits, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), c.WindowStart)
	assert.Equal(t, now.Add(25*time.Hour), c.WindowEnd)

	p := manualParams()
	deadline := now.Add(2 * time.Hour)
	p.ResponseDeadline = &deadline
	c, err = New(p, limits, now)
	require.NoError(t, err)
	assert.Equal(t, deadline, c.WindowStart)
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *NewParams)
		want   error
	}{
		{"same participant", func(p *NewParams) { p.ChallengedID = p.ChallengerID }, ErrInvalidParticipant},
		{"missing participant", func(p *NewParams) { p.ChallengedID = uuid.Nil }, ErrInvalidParticipant},
		{"bet below minimum", func(p *NewParams) { p.BetAmount = 9 }, ErrInvalidBet},
		{"negative initial balance", func(p *NewParams) { p.InitialBalance = decimal.NewFromInt(-1) }, ErrInvalidBalance},
		{"window too short", func(p *NewParams) { p.Window = window.New(now.Add(time.Hour), now.Add(time.Hour+4*time.Minute)) }, ErrInvalidWindow},
		{"window reversed", func(p *NewParams) { p.Window = window.New(now.Add(2*time.Hour), now.Add(time.Hour)) }, ErrInvalidWindow},
		{"start in past", func(p *NewParams) { p.Window = window.New(now.Add(-time.Minute), now.Add(time.Hour)) }, ErrInvalidWindow},
		{"unknown type", func(p *NewParams) { p.Type = "CHESS" }, ErrInvalidWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := botParams()
			tt.mutate(&p)
			_, err := New(p, limits, now)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	p := manualParams()
	p.Duration = 4 * time.Minute
	_, err := New(p, limits, now)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	p = manualParams()
	past := now.Add(-time.Second)
	p.ResponseDeadline = &past
	_, err = New(p, limits, now)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestCanTransitionTo(t *testing.T) {
	c := &Challenge{Status: StatusPending}
	assert.True(t, c.CanTransitionTo(StatusActive))
	assert.True(t, c.CanTransitionTo(StatusCancelled))
	assert.False(t, c.CanTransitionTo(StatusCompleted))

	c.Status = StatusActive
	assert.True(t, c.CanTransitionTo(StatusCompleted))
	assert.False(t, c.CanTransitionTo(StatusCancelled))

	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		c.Status = s
		assert.True(t, c.IsTerminal())
		assert.False(t, c.CanTransitionTo(StatusActive))
	}
}

func TestActivateReanchorsManualWindow(t *testing.T) {
	c, err := New(manualParams(), limits, now)
	require.NoError(t, err)

	acceptedAt := now.Add(3 * time.Hour)
	require.NoError(t, c.Activate(nil, acceptedAt))
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, acceptedAt, c.WindowStart)
	assert.Equal(t, acceptedAt.Add(time.Hour), c.WindowEnd)
	assert.Equal(t, acceptedAt, *c.AcceptedAt)

	assert.ErrorIs(t, c.Activate(nil, acceptedAt), ErrInvalidState)
}

func TestActivateKeepsBotWindow(t *testing.T) {
	c, err := New(botParams(), limits, now)
	require.NoError(t, err)
	start, end := c.WindowStart, c.WindowEnd
	bot := uuid.New()

	require.NoError(t, c.Activate(&bot, now.Add(time.Minute)))
	assert.Equal(t, start, c.WindowStart)
	assert.Equal(t, end, c.WindowEnd)
	assert.Equal(t, &bot, c.ChallengedBotID)
}

func TestCancel(t *testing.T) {
	c, err := New(botParams(), limits, now)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(ReasonWithdrawnByChallenger, now))
	assert.Equal(t, StatusCancelled, c.Status)
	assert.Equal(t, ReasonWithdrawnByChallenger, *c.CancelReason)
	assert.ErrorIs(t, c.Cancel(ReasonExpiredUnanswered, now), ErrInvalidState)
	assert.Equal(t, ReasonWithdrawnByChallenger, *c.CancelReason)
}

func TestCounterpart(t *testing.T) {
	c, err := New(botParams(), limits, now)
	require.NoError(t, err)

	other, ok := c.Counterpart(c.ChallengerID)
	assert.True(t, ok)
	assert.Equal(t, c.ChallengedID, other)

	_, ok = c.Counterpart(uuid.New())
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fmt.Errorf("escrow: %w", ledger.ErrInsufficientTokens), KindValidation},
		{ErrInvalidWindow, KindValidation},
		{trade.ErrExceedsPosition, KindValidation},
		{ErrForfeitNotConfirmed, KindValidation},
		{ErrInvalidState, KindState},
		{ErrTradeOutsideWindow, KindState},
		{ErrSettlementPending, KindState},
		{fmt.Errorf("lock: %w", ErrConcurrentModification), KindConcurrency},
		{ErrInvariantViolation, KindInvariant},
		{ErrNotFound, KindNotFound},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}
