package trade

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Source tells how the profit of a trade was obtained.
type Source string

const (
	// SourceManual trades get their profit from the participant's position book.
	SourceManual Source = "MANUAL"
	// SourceBot trades carry the profit reported by the bot runner.
	SourceBot Source = "BOT"
)

var (
	ErrInvalidTrade      = errors.New("invalid trade")
	ErrExceedsPosition   = errors.New("sell quantity exceeds open position")
	ErrOutOfOrder        = errors.New("trade precedes the participant's last recorded trade")
	ErrDuplicateTrade    = errors.New("trade already recorded")
	ErrParticipantAbsent = errors.New("trade user is not a challenge participant")
)

// Trade is one executed order inside a challenge. Immutable once recorded.
type Trade struct {
	ID          int64           `json:"id"`
	TradeID     uuid.UUID       `json:"tradeId"`
	ChallengeID uuid.UUID       `json:"challengeId"`
	UserID      uuid.UUID       `json:"userId"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
	Profit      decimal.Decimal `json:"profit"`
	Source      Source          `json:"source"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Validate checks the fields supplied by the execution collaborator.
func (t *Trade) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidTrade)
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidTrade)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidTrade)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidTrade)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidTrade)
	}
	if t.Source != SourceManual && t.Source != SourceBot {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidTrade, t.Source)
	}
	return nil
}

// Normalize upper-cases the symbol and side and pins the timestamp to UTC.
func (t *Trade) Normalize() {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.Side = Side(strings.ToUpper(string(t.Side)))
	t.Timestamp = t.Timestamp.UTC()
	if t.Source == "" {
		t.Source = SourceManual
	}
}
