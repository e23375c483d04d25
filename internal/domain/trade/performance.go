package trade

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnPrecision is the number of decimal places kept for return percentages.
const ReturnPrecision = 4

var hundred = decimal.NewFromInt(100)

// Position is the open quantity and average cost of one symbol.
type Position struct {
	Quantity decimal.Decimal
	AvgCost  decimal.Decimal
}

// Book tracks average-cost positions of one participant, per symbol.
// Trades must reach it in execution order.
type Book struct {
	positions map[string]*Position
	last      time.Time
}

// NewBook replays prior trades (ordered by timestamp, then recording order) into a book.
func NewBook(prior []*Trade) *Book {
	b := &Book{positions: make(map[string]*Position)}
	for _, t := range prior {
		_, _ = b.apply(t)
	}
	return b
}

// Position returns the open position for symbol.
func (b *Book) Position(symbol string) Position {
	if p, ok := b.positions[symbol]; ok {
		return *p
	}
	return Position{Quantity: decimal.Zero, AvgCost: decimal.Zero}
}

// Realize computes the profit a manual trade realizes against the book.
// BUY opens or grows a position and realizes nothing; SELL closes at most the open quantity.
// A trade stamped before the latest trade already in the book is rejected.
func (b *Book) Realize(t *Trade) (decimal.Decimal, error) {
	if t.Timestamp.Before(b.last) {
		return decimal.Zero, fmt.Errorf("%w: %s is before %s", ErrOutOfOrder,
			t.Timestamp.Format(time.RFC3339Nano), b.last.Format(time.RFC3339Nano))
	}
	pos := b.Position(t.Symbol)
	if t.Side == SideSell && t.Quantity.GreaterThan(pos.Quantity) {
		return decimal.Zero, fmt.Errorf("%w: %s open %s, sell %s", ErrExceedsPosition, t.Symbol, pos.Quantity, t.Quantity)
	}
	return b.apply(t)
}

func (b *Book) apply(t *Trade) (decimal.Decimal, error) {
	if t.Timestamp.After(b.last) {
		b.last = t.Timestamp
	}
	p, ok := b.positions[t.Symbol]
	if !ok {
		p = &Position{Quantity: decimal.Zero, AvgCost: decimal.Zero}
		b.positions[t.Symbol] = p
	}
	switch t.Side {
	case SideBuy:
		cost := p.AvgCost.Mul(p.Quantity).Add(t.Price.Mul(t.Quantity))
		p.Quantity = p.Quantity.Add(t.Quantity)
		p.AvgCost = cost.Div(p.Quantity)
		return decimal.Zero, nil
	case SideSell:
		qty := decimal.Min(t.Quantity, p.Quantity)
		profit := t.Price.Sub(p.AvgCost).Mul(qty)
		p.Quantity = p.Quantity.Sub(qty)
		if p.Quantity.IsZero() {
			p.AvgCost = decimal.Zero
		}
		return profit, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: side %q", ErrInvalidTrade, t.Side)
	}
}

// Performance is a participant's running result inside a challenge.
type Performance struct {
	UserID         uuid.UUID       `json:"userId"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Balance        decimal.Decimal `json:"balance"`
	Profit         decimal.Decimal `json:"profit"`
	ReturnPct      decimal.Decimal `json:"returnPct"`
	TradeCount     int             `json:"tradeCount"`
}

// Evaluate folds trades into balance = initial + Σprofit and
// return% = (balance - initial) / initial * 100. Trades of other users are ignored.
func Evaluate(userID uuid.UUID, initial decimal.Decimal, trades []*Trade) Performance {
	perf := Performance{
		UserID:         userID,
		InitialBalance: initial,
		Profit:         decimal.Zero,
	}
	for _, t := range trades {
		if t.UserID != userID {
			continue
		}
		perf.Profit = perf.Profit.Add(t.Profit)
		perf.TradeCount++
	}
	perf.Balance = initial.Add(perf.Profit)
	perf.ReturnPct = ReturnPct(initial, perf.Balance)
	return perf
}

// CompareReturns orders two performances by exact return, without the display
// rounding of ReturnPct. It returns 1 when a returned more, -1 when b did and 0
// only for exactly equal returns. Initial balances must be positive.
func CompareReturns(a, b Performance) int {
	// profitA/initialA vs profitB/initialB, cross-multiplied to stay exact
	return a.Profit.Mul(b.InitialBalance).Cmp(b.Profit.Mul(a.InitialBalance))
}

// ReturnPct computes the percentage return rounded to ReturnPrecision places.
// It is for display and persistence; compare outcomes with CompareReturns.
func ReturnPct(initial, balance decimal.Decimal) decimal.Decimal {
	if initial.IsZero() {
		return decimal.Zero
	}
	return balance.Sub(initial).Div(initial).Mul(hundred).Round(ReturnPrecision)
}

// SortByTimestamp orders trades by execution time, then by recording sequence for ties.
func SortByTimestamp(trades []*Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Timestamp.Equal(trades[j].Timestamp) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}
