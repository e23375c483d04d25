package trade

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines trade ledger persistence.
type Repository interface {
	// Insert appends a trade. Returns ErrDuplicateTrade if the trade id exists.
	Insert(ctx context.Context, t *Trade) error
	GetByID(ctx context.Context, tradeID uuid.UUID) (*Trade, error)
	// ListByChallenge returns trades ordered by timestamp ASC.
	ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]*Trade, error)
	ListByParticipant(ctx context.Context, challengeID, userID uuid.UUID) ([]*Trade, error)
}
