package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines token ledger persistence.
type Repository interface {
	// LockAccount returns the account row locked for the current transaction,
	// creating an empty one on first use.
	LockAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	// Append inserts tx and stores acct, whose Version must still match storage.
	Append(ctx context.Context, tx *Transaction, acct *Account) error
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, error)
	ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]*Transaction, error)
	SumByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}
