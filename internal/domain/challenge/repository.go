package challenge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows user challenge listings.
type Filter struct {
	Status *Status
	Type   *Type
	Limit  int
	Offset int
}

// Repository defines challenge persistence.
type Repository interface {
	Create(ctx context.Context, c *Challenge) error
	GetByID(ctx context.Context, challengeID uuid.UUID) (*Challenge, error)
	// GetForUpdate loads the challenge locked for the transaction in ctx.
	GetForUpdate(ctx context.Context, challengeID uuid.UUID) (*Challenge, error)
	// Update writes c if its Version still matches storage and bumps Version.
	// A stale version returns ErrConcurrentModification.
	Update(ctx context.Context, c *Challenge) error
	ListForUser(ctx context.Context, userID uuid.UUID, filter Filter) ([]*Challenge, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Challenge, error)
	// ListPendingDue returns PENDING challenges whose response deadline is at or before now.
	ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*Challenge, error)
	// ListActiveEnded returns ACTIVE challenges whose window ended at or before endedBy.
	ListActiveEnded(ctx context.Context, endedBy time.Time, limit int) ([]*Challenge, error)
}
