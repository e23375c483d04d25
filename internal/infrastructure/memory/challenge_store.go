package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
)

// ChallengeStore is an in-memory implementation of challenge.Repository.
type ChallengeStore struct {
	store *Store
}

// Create inserts a challenge and assigns its serial id.
func (r *ChallengeStore) Create(ctx context.Context, c *challenge.Challenge) error {
	return r.store.write(ctx, func(st *state) error {
		if _, exists := st.challenges[c.ChallengeID]; exists {
			return fmt.Errorf("challenge %s already exists", c.ChallengeID)
		}
		st.challengeSeq++
		c.ID = st.challengeSeq
		c.Version = 1
		cp := *c
		st.challenges[c.ChallengeID] = &cp
		return nil
	})
}

// GetByID returns a copy of the challenge, or nil if missing.
func (r *ChallengeStore) GetByID(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	r.store.read(ctx, func(st *state) {
		if c, ok := st.challenges[challengeID]; ok {
			cp := *c
			out = &cp
		}
	})
	return out, nil
}

// GetForUpdate is GetByID; the store-wide writer lock already serializes the caller.
func (r *ChallengeStore) GetForUpdate(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	if !inTx(ctx) {
		return nil, fmt.Errorf("get challenge for update: no transaction in context")
	}
	return r.GetByID(ctx, challengeID)
}

// Update stores c when its version matches and bumps the version.
func (r *ChallengeStore) Update(ctx context.Context, c *challenge.Challenge) error {
	return r.store.write(ctx, func(st *state) error {
		cur, ok := st.challenges[c.ChallengeID]
		if !ok {
			return challenge.ErrNotFound
		}
		if cur.Version != c.Version {
			return fmt.Errorf("%w: challenge %s version %d, have %d", challenge.ErrConcurrentModification, c.ChallengeID, cur.Version, c.Version)
		}
		c.Version++
		cp := *c
		st.challenges[c.ChallengeID] = &cp
		return nil
	})
}

// ListForUser returns challenges where userID participates, newest first.
func (r *ChallengeStore) ListForUser(ctx context.Context, userID uuid.UUID, filter challenge.Filter) ([]*challenge.Challenge, error) {
	return r.list(ctx, func(c *challenge.Challenge) bool {
		if !c.IsParticipant(userID) {
			return false
		}
		if filter.Status != nil && c.Status != *filter.Status {
			return false
		}
		if filter.Type != nil && c.Type != *filter.Type {
			return false
		}
		return true
	}, newestFirst, filter.Limit, filter.Offset), nil
}

// ListByStatus returns challenges with status, newest first.
func (r *ChallengeStore) ListByStatus(ctx context.Context, status challenge.Status, limit, offset int) ([]*challenge.Challenge, error) {
	return r.list(ctx, func(c *challenge.Challenge) bool {
		return c.Status == status
	}, newestFirst, limit, offset), nil
}

// ListPendingDue returns PENDING challenges with WindowStart <= now, oldest deadline first.
func (r *ChallengeStore) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*challenge.Challenge, error) {
	return r.list(ctx, func(c *challenge.Challenge) bool {
		return c.Status == challenge.StatusPending && !c.WindowStart.After(now)
	}, func(a, b *challenge.Challenge) bool {
		return a.WindowStart.Before(b.WindowStart)
	}, limit, 0), nil
}

// ListActiveEnded returns ACTIVE challenges with WindowEnd <= endedBy, oldest end first.
func (r *ChallengeStore) ListActiveEnded(ctx context.Context, endedBy time.Time, limit int) ([]*challenge.Challenge, error) {
	return r.list(ctx, func(c *challenge.Challenge) bool {
		return c.Status == challenge.StatusActive && !c.WindowEnd.After(endedBy)
	}, func(a, b *challenge.Challenge) bool {
		return a.WindowEnd.Before(b.WindowEnd)
	}, limit, 0), nil
}

func newestFirst(a, b *challenge.Challenge) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *ChallengeStore) list(ctx context.Context, match func(*challenge.Challenge) bool, less func(a, b *challenge.Challenge) bool, limit, offset int) []*challenge.Challenge {
	var result []*challenge.Challenge
	r.store.read(ctx, func(st *state) {
		for _, c := range st.challenges {
			if match(c) {
				cp := *c
				result = append(result, &cp)
			}
		}
	})
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return page(result, limit, offset)
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var _ challenge.Repository = (*ChallengeStore)(nil)
