package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	appLedger "github.com/tradeduel/tradeduel/internal/application/ledger"
	"github.com/tradeduel/tradeduel/internal/clock"
	domainChallenge "github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/event"
	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
	"github.com/tradeduel/tradeduel/internal/domain/window"
)

// SystemActor is the requester id used by the sweeper.
var SystemActor = uuid.Nil

// Recorder receives lifecycle metrics.
type Recorder interface {
	RecordTransition(status string)
	RecordSettlement(outcome string)
	RecordTrade(source string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string) {}
func (nopRecorder) RecordSettlement(string) {}
func (nopRecorder) RecordTrade(string)      {}

// Options are the creation limits taken from configuration.
type Options struct {
	MinBet                int64
	PendingTTL            time.Duration
	DefaultInitialBalance decimal.Decimal
}

// CreateInput is the input to Create.
type CreateInput struct {
	Title            string
	Description      string
	Type             domainChallenge.Type
	ChallengerID     uuid.UUID
	ChallengedID     uuid.UUID
	ChallengerBotID  *uuid.UUID
	BetAmount        int64
	InitialBalance   decimal.Decimal
	Window           window.Window
	Duration         time.Duration
	ResponseDeadline *time.Time
}

// RespondOptions carries the accepting side's choices.
type RespondOptions struct {
	BotID *uuid.UUID
}

// FinalizeOptions carries the caller's explicit forfeit confirmation.
type FinalizeOptions struct {
	ConfirmForfeit bool
}

// TradeInput is a trade reported by the execution collaborator.
type TradeInput struct {
	TradeID   *uuid.UUID
	Symbol    string
	Side      trade.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
	Source    trade.Source
	Profit    *decimal.Decimal
}

// TradeResult is a recorded trade plus the participant's running standing.
type TradeResult struct {
	Trade     *trade.Trade      `json:"trade"`
	Standing  trade.Performance `json:"standing"`
	Duplicate bool              `json:"duplicate"`
}

// Service owns challenge transitions. Every command runs in one storage
// transaction covering the challenge row, trades and ledger movements.
type Service struct {
	challengeRepo domainChallenge.Repository
	tradeRepo     trade.Repository
	ledgerSvc     *appLedger.Service
	tx            txn.Manager
	publisher     event.Publisher
	clock         clock.Clock
	opts          Options
	metrics       Recorder
	logger        zerolog.Logger
}

// NewService creates a challenge service.
func NewService(
	challengeRepo domainChallenge.Repository,
	tradeRepo trade.Repository,
	ledgerSvc *appLedger.Service,
	tx txn.Manager,
	publisher event.Publisher,
	clk clock.Clock,
	opts Options,
	metrics Recorder,
	logger zerolog.Logger,
) *Service {
	if publisher == nil {
		publisher = event.Nop{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if opts.DefaultInitialBalance.IsZero() {
		opts.DefaultInitialBalance = domainChallenge.DefaultInitialBalance
	}
	return &Service{
		challengeRepo: challengeRepo,
		tradeRepo:     tradeRepo,
		ledgerSvc:     ledgerSvc,
		tx:            tx,
		publisher:     publisher,
		clock:         clk,
		opts:          opts,
		metrics:       metrics,
		logger:        logger.With().Str("service", "challenge").Logger(),
	}
}

// Create validates input, stores a PENDING challenge and escrows the challenger's stake.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domainChallenge.Challenge, error) {
	now := s.clock.Now()
	initial := in.InitialBalance
	if initial.IsZero() {
		initial = s.opts.DefaultInitialBalance
	}
	c, err := domainChallenge.New(domainChallenge.NewParams{
		Title:            in.Title,
		Description:      in.Description,
		Type:             in.Type,
		ChallengerID:     in.ChallengerID,
		ChallengedID:     in.ChallengedID,
		ChallengerBotID:  in.ChallengerBotID,
		BetAmount:        in.BetAmount,
		InitialBalance:   initial,
		Window:           in.Window,
		Duration:         in.Duration,
		ResponseDeadline: in.ResponseDeadline,
	}, domainChallenge.Limits{MinBet: s.opts.MinBet, PendingTTL: s.opts.PendingTTL}, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.challengeRepo.Create(ctx, c); err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}
		if _, err := s.ledgerSvc.Escrow(ctx, c.ChallengerID, c.BetAmount, c.ChallengeID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("challenge_id", c.ChallengeID.String()).
		Str("type", string(c.Type)).
		Int64("bet", c.BetAmount).
		Msg("challenge created")
	s.metrics.RecordTransition(string(c.Status))
	s.publish(ctx, event.New(event.TypeChallengeCreated, c, now))
	return c, nil
}

// Respond accepts or rejects a pending challenge on behalf of the challenged user.
func (s *Service) Respond(ctx context.Context, challengeID, responder uuid.UUID, accept bool, opts RespondOptions) (*domainChallenge.Challenge, error) {
	now := s.clock.Now()
	var c *domainChallenge.Challenge
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.lock(ctx, challengeID)
		if err != nil {
			return err
		}
		if c.Status != domainChallenge.StatusPending {
			return fmt.Errorf("%w: challenge is %s", domainChallenge.ErrInvalidState, c.Status)
		}
		if responder != c.ChallengedID {
			return fmt.Errorf("%w: only the challenged user may respond", domainChallenge.ErrInvalidParticipant)
		}
		if c.Window().Classify(now) != window.PhaseBeforeStart {
			return domainChallenge.ErrChallengeExpired
		}

		if accept {
			if _, err := s.ledgerSvc.Escrow(ctx, c.ChallengedID, c.BetAmount, c.ChallengeID); err != nil {
				return err
			}
			if err := c.Activate(opts.BotID, now); err != nil {
				return err
			}
		} else {
			if err := c.Cancel(domainChallenge.ReasonRejectedByOpponent, now); err != nil {
				return err
			}
			if _, err := s.ledgerSvc.Refund(ctx, c.ChallengerID, c.BetAmount, c.ChallengeID); err != nil {
				return err
			}
		}
		if err := s.challengeRepo.Update(ctx, c); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		if !accept {
			return s.checkConservation(ctx, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	evtType := event.TypeChallengeAccepted
	if !accept {
		evtType = event.TypeChallengeRejected
	}
	s.logger.Info().
		Str("challenge_id", c.ChallengeID.String()).
		Bool("accepted", accept).
		Msg("challenge answered")
	s.metrics.RecordTransition(string(c.Status))
	s.publish(ctx, event.New(evtType, c, now))
	return c, nil
}

// RecordTrade appends a trade for a participant of an active challenge.
// A repeated trade id returns the stored trade without counting it again.
func (s *Service) RecordTrade(ctx context.Context, challengeID, userID uuid.UUID, in TradeInput) (*TradeResult, error) {
	now := s.clock.Now()
	t := &trade.Trade{
		ChallengeID: challengeID,
		UserID:      userID,
		Symbol:      in.Symbol,
		Side:        in.Side,
		Quantity:    in.Quantity,
		Price:       in.Price,
		Timestamp:   in.Timestamp,
		Source:      in.Source,
		CreatedAt:   now.UTC(),
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}
	if in.TradeID != nil {
		t.TradeID = *in.TradeID
	} else {
		t.TradeID = uuid.New()
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Source == trade.SourceBot && in.Profit == nil {
		return nil, fmt.Errorf("%w: bot trades must report profit", domainChallenge.ErrInvalidTrade)
	}

	var (
		c      *domainChallenge.Challenge
		result *TradeResult
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.lock(ctx, challengeID)
		if err != nil {
			return err
		}

		existing, err := s.tradeRepo.GetByID(ctx, t.TradeID)
		if err != nil {
			return fmt.Errorf("get trade: %w", err)
		}
		if existing != nil {
			if existing.ChallengeID != challengeID || existing.UserID != userID {
				return fmt.Errorf("%w: trade id %s already used", domainChallenge.ErrInvalidTrade, t.TradeID)
			}
			result, err = s.standing(ctx, c, existing, true)
			return err
		}

		if c.Status != domainChallenge.StatusActive {
			return fmt.Errorf("%w: challenge is %s", domainChallenge.ErrChallengeNotActive, c.Status)
		}
		if !c.IsParticipant(userID) {
			return fmt.Errorf("%w: %s is not in this challenge", domainChallenge.ErrInvalidParticipant, userID)
		}
		if !c.Window().Contains(t.Timestamp) {
			return fmt.Errorf("%w: %s not in [%s, %s]", domainChallenge.ErrTradeOutsideWindow,
				t.Timestamp.Format(time.RFC3339), c.WindowStart.Format(time.RFC3339), c.WindowEnd.Format(time.RFC3339))
		}

		switch t.Source {
		case trade.SourceBot:
			t.Profit = *in.Profit
		default:
			prior, err := s.tradeRepo.ListByParticipant(ctx, challengeID, userID)
			if err != nil {
				return fmt.Errorf("list trades: %w", err)
			}
			profit, err := trade.NewBook(prior).Realize(t)
			if err != nil {
				return fmt.Errorf("%w: %w", domainChallenge.ErrInvalidTrade, err)
			}
			t.Profit = profit
		}

		if err := s.tradeRepo.Insert(ctx, t); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		result, err = s.standing(ctx, c, t, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		s.metrics.RecordTrade(string(t.Source))
		evt := event.New(event.TypeTradeRecorded, c, now)
		evt.Trade = result.Trade
		s.publish(ctx, evt)
	}
	return result, nil
}

func (s *Service) standing(ctx context.Context, c *domainChallenge.Challenge, t *trade.Trade, duplicate bool) (*TradeResult, error) {
	trades, err := s.tradeRepo.ListByParticipant(ctx, c.ChallengeID, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return &TradeResult{
		Trade:     t,
		Standing:  trade.Evaluate(t.UserID, c.InitialBalance, trades),
		Duplicate: duplicate,
	}, nil
}

// Finalize completes an active challenge. Past the settlement buffer the
// challenge settles on returns; before the window ends the requester forfeits.
// A completed challenge is returned unchanged.
func (s *Service) Finalize(ctx context.Context, challengeID, requestedBy uuid.UUID, opts FinalizeOptions) (*domainChallenge.Challenge, error) {
	now := s.clock.Now()
	var (
		c         *domainChallenge.Challenge
		result    *domainChallenge.Result
		completed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.lock(ctx, challengeID)
		if err != nil {
			return err
		}
		if c.Status == domainChallenge.StatusCompleted {
			return nil
		}
		if c.Status != domainChallenge.StatusActive {
			return fmt.Errorf("%w: challenge is %s", domainChallenge.ErrChallengeNotActive, c.Status)
		}
		if requestedBy != SystemActor && !c.IsParticipant(requestedBy) {
			return fmt.Errorf("%w: only participants may finalize", domainChallenge.ErrInvalidParticipant)
		}

		var forfeitBy *uuid.UUID
		switch c.Window().Classify(now) {
		case window.PhaseExpired:
		case window.PhasePastEndWithinBuffer:
			return fmt.Errorf("%w: retry after %s", domainChallenge.ErrSettlementPending, c.Window().SettleableAt().Format(time.RFC3339))
		default:
			if requestedBy == SystemActor {
				return fmt.Errorf("%w: window still open", domainChallenge.ErrInvalidState)
			}
			if !opts.ConfirmForfeit {
				return domainChallenge.ErrForfeitNotConfirmed
			}
			forfeiter := requestedBy
			forfeitBy = &forfeiter
		}

		trades, err := s.tradeRepo.ListByChallenge(ctx, c.ChallengeID)
		if err != nil {
			return fmt.Errorf("list trades: %w", err)
		}
		result, err = domainChallenge.Settle(c,
			trade.Evaluate(c.ChallengerID, c.InitialBalance, trades),
			trade.Evaluate(c.ChallengedID, c.InitialBalance, trades),
			forfeitBy)
		if err != nil {
			return err
		}

		if err := s.ledgerSvc.LockAccounts(ctx, c.Participants()...); err != nil {
			return err
		}
		for _, m := range result.Movements {
			if err := s.move(ctx, c, m); err != nil {
				return err
			}
		}
		if err := c.Complete(result, now); err != nil {
			return err
		}
		if err := s.challengeRepo.Update(ctx, c); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		completed = true
		return s.checkConservation(ctx, c)
	})
	if err != nil {
		if errors.Is(err, domainChallenge.ErrInvariantViolation) {
			s.logger.Error().Err(err).Str("challenge_id", challengeID.String()).Msg("settlement aborted")
		}
		return nil, err
	}
	if !completed {
		return c, nil
	}

	outcome := "win"
	switch {
	case result.Forfeit:
		outcome = "forfeit"
	case result.IsTie():
		outcome = "tie"
	}
	s.logger.Info().
		Str("challenge_id", c.ChallengeID.String()).
		Str("outcome", outcome).
		Str("requested_by", requestedBy.String()).
		Msg("challenge completed")
	s.metrics.RecordTransition(string(c.Status))
	s.metrics.RecordSettlement(outcome)
	s.publish(ctx, event.New(event.TypeChallengeCompleted, c, now))
	return c, nil
}

func (s *Service) move(ctx context.Context, c *domainChallenge.Challenge, m domainChallenge.Movement) error {
	var err error
	switch m.Type {
	case ledger.TypePayout:
		_, err = s.ledgerSvc.Payout(ctx, m.UserID, m.Amount, c.ChallengeID)
	case ledger.TypeRefund:
		_, err = s.ledgerSvc.Refund(ctx, m.UserID, m.Amount, c.ChallengeID)
	default:
		err = fmt.Errorf("%w: unexpected settlement movement %s", domainChallenge.ErrInvariantViolation, m.Type)
	}
	return err
}

// Cancel withdraws a pending challenge. Only the challenger may cancel.
func (s *Service) Cancel(ctx context.Context, challengeID, requestedBy uuid.UUID) (*domainChallenge.Challenge, error) {
	return s.cancel(ctx, challengeID, domainChallenge.ReasonWithdrawnByChallenger, func(c *domainChallenge.Challenge, _ time.Time) error {
		if requestedBy != c.ChallengerID {
			return fmt.Errorf("%w: only the challenger may cancel", domainChallenge.ErrInvalidParticipant)
		}
		return nil
	})
}

// Expire cancels a pending challenge whose response deadline has passed.
func (s *Service) Expire(ctx context.Context, challengeID uuid.UUID) (*domainChallenge.Challenge, error) {
	return s.cancel(ctx, challengeID, domainChallenge.ReasonExpiredUnanswered, func(c *domainChallenge.Challenge, now time.Time) error {
		if c.Window().Classify(now) == window.PhaseBeforeStart {
			return fmt.Errorf("%w: response deadline not reached", domainChallenge.ErrInvalidState)
		}
		return nil
	})
}

func (s *Service) cancel(ctx context.Context, challengeID uuid.UUID, reason domainChallenge.CancelReason, check func(*domainChallenge.Challenge, time.Time) error) (*domainChallenge.Challenge, error) {
	now := s.clock.Now()
	var c *domainChallenge.Challenge
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.lock(ctx, challengeID)
		if err != nil {
			return err
		}
		if c.Status != domainChallenge.StatusPending {
			return fmt.Errorf("%w: challenge is %s", domainChallenge.ErrInvalidState, c.Status)
		}
		if err := check(c, now); err != nil {
			return err
		}
		if err := c.Cancel(reason, now); err != nil {
			return err
		}
		if _, err := s.ledgerSvc.Refund(ctx, c.ChallengerID, c.BetAmount, c.ChallengeID); err != nil {
			return err
		}
		if err := s.challengeRepo.Update(ctx, c); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		return s.checkConservation(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("challenge_id", c.ChallengeID.String()).
		Str("reason", string(reason)).
		Msg("challenge cancelled")
	s.metrics.RecordTransition(string(c.Status))
	s.publish(ctx, event.New(event.ForCancel(reason), c, now))
	return c, nil
}

// checkConservation verifies a terminal challenge nets to zero in the ledger.
func (s *Service) checkConservation(ctx context.Context, c *domainChallenge.Challenge) error {
	entries, err := s.ledgerSvc.ChallengeEntries(ctx, c.ChallengeID)
	if err != nil {
		return fmt.Errorf("list challenge entries: %w", err)
	}
	if net := ledger.Net(entries, c.ChallengeID); net != 0 {
		return fmt.Errorf("%w: challenge %s nets %d tokens after %s", domainChallenge.ErrInvariantViolation, c.ChallengeID, net, c.Status)
	}
	return nil
}

func (s *Service) lock(ctx context.Context, challengeID uuid.UUID) (*domainChallenge.Challenge, error) {
	c, err := s.challengeRepo.GetForUpdate(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("lock challenge: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", domainChallenge.ErrNotFound, challengeID)
	}
	return c, nil
}

func (s *Service) publish(ctx context.Context, evt *event.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).
			Str("event", string(evt.Type)).
			Str("challenge_id", evt.ChallengeID.String()).
			Msg("publish event failed")
	}
}

// Get returns a challenge.
func (s *Service) Get(ctx context.Context, challengeID uuid.UUID) (*domainChallenge.Challenge, error) {
	c, err := s.challengeRepo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", domainChallenge.ErrNotFound, challengeID)
	}
	return c, nil
}

// ListForUser lists challenges where userID participates.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, filter domainChallenge.Filter) ([]*domainChallenge.Challenge, error) {
	return s.challengeRepo.ListForUser(ctx, userID, filter)
}

// ListActive lists ACTIVE challenges.
func (s *Service) ListActive(ctx context.Context, limit, offset int) ([]*domainChallenge.Challenge, error) {
	return s.challengeRepo.ListByStatus(ctx, domainChallenge.StatusActive, limit, offset)
}

// Trades lists a challenge's trades in execution order.
func (s *Service) Trades(ctx context.Context, challengeID uuid.UUID) ([]*trade.Trade, error) {
	if _, err := s.Get(ctx, challengeID); err != nil {
		return nil, err
	}
	return s.tradeRepo.ListByChallenge(ctx, challengeID)
}

// Standings returns both participants' live standing and the display status.
func (s *Service) Standings(ctx context.Context, challengeID uuid.UUID) (*domainChallenge.Standings, error) {
	c, err := s.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	trades, err := s.tradeRepo.ListByChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	return domainChallenge.BuildStandings(c, trades, s.clock.Now()), nil
}
