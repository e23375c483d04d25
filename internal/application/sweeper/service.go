package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appChallenge "github.com/tradeduel/tradeduel/internal/application/challenge"
	"github.com/tradeduel/tradeduel/internal/clock"
	domainChallenge "github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/window"
	"github.com/tradeduel/tradeduel/internal/infrastructure/cache"
)

const (
	JobPending = "pending"
	JobActive  = "active"
)

// Challenges is the transition surface the sweeper drives.
type Challenges interface {
	Expire(ctx context.Context, challengeID uuid.UUID) (*domainChallenge.Challenge, error)
	Finalize(ctx context.Context, challengeID, requestedBy uuid.UUID, opts appChallenge.FinalizeOptions) (*domainChallenge.Challenge, error)
}

// Recorder receives sweeper metrics.
type Recorder interface {
	RecordSweep(job, result string)
	RecordSweepDuration(job string, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(string, string)          {}
func (nopRecorder) RecordSweepDuration(string, float64) {}

// Config controls sweep cadence.
type Config struct {
	PendingInterval time.Duration
	ActiveInterval  time.Duration
	BatchSize       int
}

// Service drives time-based transitions through the same entry points the API uses.
type Service struct {
	repo       domainChallenge.Repository
	challenges Challenges
	locker     cache.Locker
	clock      clock.Clock
	cfg        Config
	metrics    Recorder
	logger     zerolog.Logger

	mu     sync.Mutex
	halted map[uuid.UUID]error
}

// NewService creates a sweeper. locker may be nil for a single replica.
func NewService(
	repo domainChallenge.Repository,
	challenges Challenges,
	locker cache.Locker,
	clk clock.Clock,
	cfg Config,
	metrics Recorder,
	logger zerolog.Logger,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		repo:       repo,
		challenges: challenges,
		locker:     locker,
		clock:      clk,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With().Str("service", "sweeper").Logger(),
		halted:     make(map[uuid.UUID]error),
	}
}

// ExpirePending cancels pending challenges whose response deadline passed.
func (s *Service) ExpirePending(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListPendingDue(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, c := range due {
		if s.isHalted(c.ChallengeID) {
			continue
		}
		_, err := s.challenges.Expire(ctx, c.ChallengeID)
		if s.handle(JobPending, c.ChallengeID, err) {
			count++
		}
	}
	return count, nil
}

// SettleEnded finalizes active challenges past their settlement buffer.
func (s *Service) SettleEnded(ctx context.Context, limit int) (int, error) {
	ended, err := s.repo.ListActiveEnded(ctx, s.clock.Now().Add(-window.Buffer), limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, c := range ended {
		if s.isHalted(c.ChallengeID) {
			continue
		}
		_, err := s.challenges.Finalize(ctx, c.ChallengeID, appChallenge.SystemActor, appChallenge.FinalizeOptions{})
		if s.handle(JobActive, c.ChallengeID, err) {
			count++
		}
	}
	return count, nil
}

// handle logs and counts one item result. It reports whether the item transitioned.
func (s *Service) handle(job string, id uuid.UUID, err error) bool {
	if err == nil {
		s.metrics.RecordSweep(job, "ok")
		return true
	}
	log := s.logger.With().Str("job", job).Str("challenge_id", id.String()).Logger()
	switch domainChallenge.KindOf(err) {
	case domainChallenge.KindState, domainChallenge.KindNotFound:
		s.metrics.RecordSweep(job, "skipped")
		log.Debug().Err(err).Msg("already transitioned")
	case domainChallenge.KindConcurrency:
		s.metrics.RecordSweep(job, "retry")
		log.Warn().Err(err).Msg("contention, retrying next tick")
	case domainChallenge.KindInvariant:
		s.metrics.RecordSweep(job, "halted")
		s.mu.Lock()
		s.halted[id] = err
		s.mu.Unlock()
		log.Error().Err(err).Msg("invariant violation, challenge halted for reconciliation")
	default:
		s.metrics.RecordSweep(job, "error")
		log.Warn().Err(err).Msg("sweep failed")
	}
	return false
}

func (s *Service) isHalted(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.halted[id]
	return ok
}

// Halted lists challenges the sweeper stopped touching.
func (s *Service) Halted() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.halted))
	for id := range s.halted {
		out = append(out, id)
	}
	return out
}

// Release clears a halted challenge after manual reconciliation.
func (s *Service) Release(id uuid.UUID) {
	s.mu.Lock()
	delete(s.halted, id)
	s.mu.Unlock()
}

// Run ticks both jobs until ctx is done.
func (s *Service) Run(ctx context.Context) {
	pending := time.NewTicker(s.cfg.PendingInterval)
	defer pending.Stop()
	active := time.NewTicker(s.cfg.ActiveInterval)
	defer active.Stop()

	s.logger.Info().
		Dur("pending_interval", s.cfg.PendingInterval).
		Dur("active_interval", s.cfg.ActiveInterval).
		Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-pending.C:
			s.RunOnce(ctx, JobPending, s.cfg.PendingInterval)
		case <-active.C:
			s.RunOnce(ctx, JobActive, s.cfg.ActiveInterval)
		}
	}
}

// RunOnce runs one pass of job if this replica wins the lease for it.
func (s *Service) RunOnce(ctx context.Context, job string, lease time.Duration) {
	if s.locker != nil {
		key := cache.Key("sweeper", job)
		ok, err := s.locker.TryLock(ctx, key, lease)
		if err != nil {
			s.logger.Warn().Err(err).Str("job", job).Msg("sweeper lease failed")
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn().Err(err).Str("job", job).Msg("sweeper lease release failed")
			}
		}()
	}

	start := time.Now()
	var (
		n   int
		err error
	)
	switch job {
	case JobPending:
		n, err = s.ExpirePending(ctx, s.cfg.BatchSize)
	case JobActive:
		n, err = s.SettleEnded(ctx, s.cfg.BatchSize)
	}
	s.metrics.RecordSweepDuration(job, time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn().Err(err).Str("job", job).Msg("sweep pass failed")
		return
	}
	if n > 0 {
		s.logger.Info().Str("job", job).Int("processed", n).Msg("sweep pass")
	}
}
