package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of balance movement.
type Type string

const (
	TypeCredit Type = "CREDIT"
	TypeEscrow Type = "ESCROW"
	TypeRefund Type = "REFUND"
	TypePayout Type = "PAYOUT"
)

var (
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrBalanceMismatch    = errors.New("cached balance does not match transaction log")
)

// Transaction is one append-only ledger row. Amount is signed: escrows are negative.
type Transaction struct {
	ID            int64      `json:"id"`
	TransactionID uuid.UUID  `json:"transactionId"`
	UserID        uuid.UUID  `json:"userId"`
	Type          Type       `json:"type"`
	Amount        int64      `json:"amount"`
	BalanceAfter  int64      `json:"balanceAfter"`
	ChallengeID   *uuid.UUID `json:"challengeId,omitempty"`
	Reference     *string    `json:"reference,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Account is the cached running total kept next to the log.
type Account struct {
	UserID    uuid.UUID `json:"userId"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Signed converts a positive amount into the signed ledger amount for t.
func Signed(t Type, amount int64) int64 {
	if t == TypeEscrow {
		return -amount
	}
	return amount
}

// NewTransaction applies a movement to the account and returns the row to append.
// The account is advanced in place; callers persist both in one transaction.
func NewTransaction(acct *Account, t Type, amount int64, challengeID *uuid.UUID, now time.Time) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	signed := Signed(t, amount)
	if acct.Balance+signed < 0 {
		return nil, ErrInsufficientTokens
	}
	acct.Balance += signed
	acct.UpdatedAt = now
	return &Transaction{
		TransactionID: uuid.New(),
		UserID:        acct.UserID,
		Type:          t,
		Amount:        signed,
		BalanceAfter:  acct.Balance,
		ChallengeID:   challengeID,
		CreatedAt:     now,
	}, nil
}

// Fold sums a transaction log into a balance.
func Fold(txs []*Transaction) int64 {
	var total int64
	for _, tx := range txs {
		total += tx.Amount
	}
	return total
}

// Net sums the amounts attributable to one challenge. A terminal challenge nets to zero.
func Net(txs []*Transaction, challengeID uuid.UUID) int64 {
	var total int64
	for _, tx := range txs {
		if tx.ChallengeID != nil && *tx.ChallengeID == challengeID {
			total += tx.Amount
		}
	}
	return total
}
