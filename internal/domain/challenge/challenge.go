package challenge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradeduel/tradeduel/internal/domain/window"
)

// Type represents how participants trade.
type Type string

const (
	TypeManualTrading Type = "MANUAL_TRADING"
	TypeBotDuel       Type = "BOT_DUEL"
)

// Status represents persisted challenge status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// CancelReason records why a challenge never ran.
type CancelReason string

const (
	ReasonRejectedByOpponent    CancelReason = "REJECTED_BY_OPPONENT"
	ReasonWithdrawnByChallenger CancelReason = "WITHDRAWN_BY_CHALLENGER"
	ReasonExpiredUnanswered     CancelReason = "EXPIRED_UNANSWERED"
)

// DefaultInitialBalance is the simulated starting capital per participant.
var DefaultInitialBalance = decimal.NewFromInt(1000)

// Challenge is a staked, time-boxed contest between two users.
//
// While PENDING, WindowStart is the response deadline. MANUAL_TRADING windows
// are re-anchored to the acceptance instant.
type Challenge struct {
	ID                  int64            `json:"id"`
	ChallengeID         uuid.UUID        `json:"challengeId"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Type                Type             `json:"type"`
	Status              Status           `json:"status"`
	CancelReason        *CancelReason    `json:"cancelReason,omitempty"`
	WindowStart         time.Time        `json:"windowStart"`
	WindowEnd           time.Time        `json:"windowEnd"`
	DurationSeconds     int64            `json:"durationSeconds"`
	DurationDays        int              `json:"durationDays"`
	BetAmount           int64            `json:"betAmount"`
	InitialBalance      decimal.Decimal  `json:"initialBalance"`
	ChallengerID        uuid.UUID        `json:"challengerId"`
	ChallengedID        uuid.UUID        `json:"challengedId"`
	ChallengerBotID     *uuid.UUID       `json:"challengerBotId,omitempty"`
	ChallengedBotID     *uuid.UUID       `json:"challengedBotId,omitempty"`
	WinnerID            *uuid.UUID       `json:"winnerId,omitempty"`
	LoserID             *uuid.UUID       `json:"loserId,omitempty"`
	Forfeit             bool             `json:"forfeit"`
	ForfeitedBy         *uuid.UUID       `json:"forfeitedBy,omitempty"`
	ChallengerReturnPct *decimal.Decimal `json:"challengerReturnPct,omitempty"`
	ChallengedReturnPct *decimal.Decimal `json:"challengedReturnPct,omitempty"`
	ChallengerProfit    *decimal.Decimal `json:"challengerProfit,omitempty"`
	ChallengedProfit    *decimal.Decimal `json:"challengedProfit,omitempty"`
	Version             int64            `json:"version"`
	CreatedAt           time.Time        `json:"createdAt"`
	AcceptedAt          *time.Time       `json:"acceptedAt,omitempty"`
	CompletedAt         *time.Time       `json:"completedAt,omitempty"`
	CancelledAt         *time.Time       `json:"cancelledAt,omitempty"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// NewParams carries creation input. BOT_DUEL uses Window; MANUAL_TRADING uses
// Duration plus an optional ResponseDeadline.
type NewParams struct {
	Title            string
	Description      string
	Type             Type
	ChallengerID     uuid.UUID
	ChallengedID     uuid.UUID
	ChallengerBotID  *uuid.UUID
	BetAmount        int64
	InitialBalance   decimal.Decimal
	Window           window.Window
	Duration         time.Duration
	ResponseDeadline *time.Time
}

// Limits are the creation rules that come from configuration.
type Limits struct {
	MinBet     int64
	PendingTTL time.Duration
}

// New validates params and builds a PENDING challenge.
func New(p NewParams, limits Limits, now time.Time) (*Challenge, error) {
	if p.ChallengerID == uuid.Nil || p.ChallengedID == uuid.Nil {
		return nil, fmt.Errorf("%w: both participants are required", ErrInvalidParticipant)
	}
	if p.ChallengerID == p.ChallengedID {
		return nil, fmt.Errorf("%w: cannot challenge yourself", ErrInvalidParticipant)
	}
	if p.BetAmount < limits.MinBet {
		return nil, fmt.Errorf("%w: minimum bet is %d", ErrInvalidBet, limits.MinBet)
	}
	initial := p.InitialBalance
	if initial.IsZero() {
		initial = DefaultInitialBalance
	}
	if !initial.IsPositive() {
		return nil, ErrInvalidBalance
	}

	var w window.Window
	switch p.Type {
	case TypeBotDuel:
		w = window.New(p.Window.Start, p.Window.End)
		if err := w.Validate(window.MinDuration); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
	case TypeManualTrading:
		if p.Duration < window.MinDuration {
			return nil, fmt.Errorf("%w: duration %s shorter than %s", ErrInvalidWindow, p.Duration, window.MinDuration)
		}
		deadline := now.Add(limits.PendingTTL)
		if p.ResponseDeadline != nil {
			deadline = *p.ResponseDeadline
		}
		w = window.Anchored(deadline, p.Duration)
	default:
		return nil, fmt.Errorf("%w: unknown challenge type %q", ErrInvalidWindow, p.Type)
	}
	if !w.Start.After(now) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, window.ErrStartInPast)
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = fmt.Sprintf("%d token duel", p.BetAmount)
	}
	now = now.UTC()
	return &Challenge{
		ChallengeID:     uuid.New(),
		Title:           title,
		Description:     strings.TrimSpace(p.Description),
		Type:            p.Type,
		Status:          StatusPending,
		WindowStart:     w.Start,
		WindowEnd:       w.End,
		DurationSeconds: int64(w.Duration() / time.Second),
		DurationDays:    w.DurationDays(),
		BetAmount:       p.BetAmount,
		InitialBalance:  initial,
		ChallengerID:    p.ChallengerID,
		ChallengedID:    p.ChallengedID,
		ChallengerBotID: p.ChallengerBotID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Window returns the challenge window for the shared evaluator.
func (c *Challenge) Window() window.Window {
	return window.New(c.WindowStart, c.WindowEnd)
}

// Duration is the requested trading duration.
func (c *Challenge) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// CanTransitionTo validates challenge status transition.
func (c *Challenge) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:   {StatusActive, StatusCancelled},
		StatusActive:    {StatusCompleted},
		StatusCompleted: {},
		StatusCancelled: {},
	}
	for _, s := range transitions[c.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the record can no longer change.
func (c *Challenge) IsTerminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusCancelled
}

// IsParticipant reports whether userID is challenger or challenged.
func (c *Challenge) IsParticipant(userID uuid.UUID) bool {
	return userID == c.ChallengerID || userID == c.ChallengedID
}

// Counterpart returns the other participant.
func (c *Challenge) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.ChallengerID:
		return c.ChallengedID, true
	case c.ChallengedID:
		return c.ChallengerID, true
	default:
		return uuid.Nil, false
	}
}

// Participants returns challenger then challenged.
func (c *Challenge) Participants() []uuid.UUID {
	return []uuid.UUID{c.ChallengerID, c.ChallengedID}
}

// Activate moves a pending challenge to ACTIVE. MANUAL_TRADING windows start at now.
func (c *Challenge) Activate(botID *uuid.UUID, now time.Time) error {
	if !c.CanTransitionTo(StatusActive) {
		return fmt.Errorf("%w: cannot accept a %s challenge", ErrInvalidState, c.Status)
	}
	now = now.UTC()
	if c.Type == TypeManualTrading {
		w := window.Anchored(now, c.Duration())
		c.WindowStart = w.Start
		c.WindowEnd = w.End
		c.DurationDays = w.DurationDays()
	}
	c.ChallengedBotID = botID
	c.Status = StatusActive
	c.AcceptedAt = &now
	c.UpdatedAt = now
	return nil
}

// Cancel moves a pending challenge to CANCELLED.
func (c *Challenge) Cancel(reason CancelReason, now time.Time) error {
	if !c.CanTransitionTo(StatusCancelled) {
		return fmt.Errorf("%w: cannot cancel a %s challenge", ErrInvalidState, c.Status)
	}
	now = now.UTC()
	c.Status = StatusCancelled
	c.CancelReason = &reason
	c.CancelledAt = &now
	c.UpdatedAt = now
	return nil
}

// Complete stores a settlement result and moves the challenge to COMPLETED.
func (c *Challenge) Complete(r *Result, now time.Time) error {
	if !c.CanTransitionTo(StatusCompleted) {
		return fmt.Errorf("%w: cannot complete a %s challenge", ErrChallengeNotActive, c.Status)
	}
	if (r.WinnerID == nil) != (r.LoserID == nil) {
		return fmt.Errorf("%w: winner and loser must be set together", ErrInvariantViolation)
	}
	now = now.UTC()
	c.Status = StatusCompleted
	c.WinnerID = r.WinnerID
	c.LoserID = r.LoserID
	c.Forfeit = r.Forfeit
	c.ForfeitedBy = r.ForfeitedBy
	c.ChallengerReturnPct = &r.ChallengerReturnPct
	c.ChallengedReturnPct = &r.ChallengedReturnPct
	c.ChallengerProfit = &r.ChallengerProfit
	c.ChallengedProfit = &r.ChallengedProfit
	c.CompletedAt = &now
	c.UpdatedAt = now
	return nil
}

// IsTie reports a completed challenge with no winner.
func (c *Challenge) IsTie() bool {
	return c.Status == StatusCompleted && c.WinnerID == nil
}

// StoredResult rebuilds the persisted settlement of a completed challenge.
func (c *Challenge) StoredResult() *Result {
	if c.Status != StatusCompleted {
		return nil
	}
	r := &Result{
		WinnerID:    c.WinnerID,
		LoserID:     c.LoserID,
		Forfeit:     c.Forfeit,
		ForfeitedBy: c.ForfeitedBy,
	}
	if c.ChallengerReturnPct != nil {
		r.ChallengerReturnPct = *c.ChallengerReturnPct
	}
	if c.ChallengedReturnPct != nil {
		r.ChallengedReturnPct = *c.ChallengedReturnPct
	}
	if c.ChallengerProfit != nil {
		r.ChallengerProfit = *c.ChallengerProfit
	}
	if c.ChallengedProfit != nil {
		r.ChallengedProfit = *c.ChallengedProfit
	}
	r.Movements = movements(c, r.WinnerID)
	return r
}
