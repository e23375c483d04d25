package stats

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appLedger "github.com/tradeduel/tradeduel/internal/application/ledger"
	"github.com/tradeduel/tradeduel/internal/clock"
	domainChallenge "github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/event"
	domainStats "github.com/tradeduel/tradeduel/internal/domain/stats"
	"github.com/tradeduel/tradeduel/internal/infrastructure/cache"
)

const (
	// MaxLeaderboard bounds the cached leaderboard; requests slice it.
	MaxLeaderboard = 100

	defaultTTL = 5 * time.Minute
)

// Service serves read-only projections. Results are cached and invalidated
// by lifecycle events.
type Service struct {
	challengeRepo domainChallenge.Repository
	statsRepo     domainStats.Repository
	ledgerSvc     *appLedger.Service
	cache         cache.Service
	clock         clock.Clock
	ttl           time.Duration
	logger        zerolog.Logger
}

// NewService creates a stats service. cache may be nil to disable caching.
func NewService(
	challengeRepo domainChallenge.Repository,
	statsRepo domainStats.Repository,
	ledgerSvc *appLedger.Service,
	c cache.Service,
	clk clock.Clock,
	ttl time.Duration,
	logger zerolog.Logger,
) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		challengeRepo: challengeRepo,
		statsRepo:     statsRepo,
		ledgerSvc:     ledgerSvc,
		cache:         c,
		clock:         clk,
		ttl:           ttl,
		logger:        logger.With().Str("service", "stats").Logger(),
	}
}

func userKey(userID uuid.UUID) string {
	return cache.Key("stats", "user", userID)
}

func leaderboardKey() string {
	return cache.Key("stats", "leaderboard")
}

// UserStats returns the projection for userID.
func (s *Service) UserStats(ctx context.Context, userID uuid.UUID) (*domainStats.UserStats, error) {
	var cached domainStats.UserStats
	if s.lookup(ctx, userKey(userID), &cached) {
		return &cached, nil
	}

	acct, err := s.ledgerSvc.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	challenges, err := s.challengeRepo.ListForUser(ctx, userID, domainChallenge.Filter{})
	if err != nil {
		return nil, err
	}
	txs, err := s.ledgerSvc.History(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	out := domainStats.Compute(userID, acct.Balance, challenges, txs, s.clock.Now())
	s.store(ctx, userKey(userID), out)
	return out, nil
}

// Leaderboard returns the top limit users.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*domainStats.LeaderboardEntry, error) {
	if limit <= 0 || limit > MaxLeaderboard {
		limit = MaxLeaderboard
	}
	var entries []*domainStats.LeaderboardEntry
	if !s.lookup(ctx, leaderboardKey(), &entries) {
		var err error
		entries, err = s.statsRepo.Leaderboard(ctx, MaxLeaderboard)
		if err != nil {
			return nil, err
		}
		s.store(ctx, leaderboardKey(), entries)
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Invalidate drops cached projections touched by a challenge.
func (s *Service) Invalidate(ctx context.Context, participants ...uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	keys := []string{leaderboardKey()}
	for _, id := range participants {
		keys = append(keys, userKey(id))
	}
	return s.cache.Delete(ctx, keys...)
}

func (s *Service) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	return false
}

func (s *Service) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Invalidator is an event.Publisher that evicts projections of the event's participants.
type Invalidator struct {
	svc *Service
}

// NewInvalidator wires svc into the event fan-out.
func NewInvalidator(svc *Service) *Invalidator {
	return &Invalidator{svc: svc}
}

// Publish implements event.Publisher.
func (i *Invalidator) Publish(ctx context.Context, evt *event.Event) error {
	return i.svc.Invalidate(ctx, evt.Participants...)
}

var _ event.Publisher = (*Invalidator)(nil)
