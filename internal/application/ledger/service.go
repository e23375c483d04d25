package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradeduel/tradeduel/internal/clock"
	domainLedger "github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
)

// Service moves tokens. Every movement appends exactly one transaction and
// updates the cached balance inside the caller's storage transaction.
type Service struct {
	repo   domainLedger.Repository
	tx     txn.Manager
	clock  clock.Clock
	logger zerolog.Logger
}

// NewService creates a ledger service.
func NewService(repo domainLedger.Repository, tx txn.Manager, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		clock:  clk,
		logger: logger.With().Str("service", "ledger").Logger(),
	}
}

// Reconciliation compares the cached balance with the folded log.
type Reconciliation struct {
	UserID     uuid.UUID `json:"userId"`
	Cached     int64     `json:"cached"`
	Folded     int64     `json:"folded"`
	Consistent bool      `json:"consistent"`
}

// Escrow locks amount from userID for challengeID.
func (s *Service) Escrow(ctx context.Context, userID uuid.UUID, amount int64, challengeID uuid.UUID) (int64, error) {
	tx, err := s.apply(ctx, userID, domainLedger.TypeEscrow, amount, &challengeID, nil)
	if err != nil {
		return 0, err
	}
	return tx.BalanceAfter, nil
}

// Refund returns an escrowed stake.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount int64, challengeID uuid.UUID) (int64, error) {
	tx, err := s.apply(ctx, userID, domainLedger.TypeRefund, amount, &challengeID, nil)
	if err != nil {
		return 0, err
	}
	return tx.BalanceAfter, nil
}

// Payout pays a challenge pot to its winner.
func (s *Service) Payout(ctx context.Context, userID uuid.UUID, amount int64, challengeID uuid.UUID) (int64, error) {
	tx, err := s.apply(ctx, userID, domainLedger.TypePayout, amount, &challengeID, nil)
	if err != nil {
		return 0, err
	}
	return tx.BalanceAfter, nil
}

// Credit funds an account from outside the challenge engine.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64, reference string) (*domainLedger.Transaction, error) {
	var ref *string
	if reference != "" {
		ref = &reference
	}
	tx, err := s.apply(ctx, userID, domainLedger.TypeCredit, amount, nil, ref)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Int64("balance", tx.BalanceAfter).
		Msg("account credited")
	return tx, nil
}

// LockAccounts locks the given accounts in a stable order so concurrent
// settlements touching the same pair cannot deadlock.
func (s *Service) LockAccounts(ctx context.Context, userIDs ...uuid.UUID) error {
	ids := append([]uuid.UUID(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if _, err := s.repo.LockAccount(ctx, id); err != nil {
				return fmt.Errorf("lock account %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Service) apply(ctx context.Context, userID uuid.UUID, t domainLedger.Type, amount int64, challengeID *uuid.UUID, ref *string) (*domainLedger.Transaction, error) {
	var out *domainLedger.Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		acct, err := s.repo.LockAccount(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		entry, err := domainLedger.NewTransaction(acct, t, amount, challengeID, s.clock.Now())
		if err != nil {
			return fmt.Errorf("%s %d for %s: %w", t, amount, userID, err)
		}
		entry.Reference = ref
		if err := s.repo.Append(ctx, entry, acct); err != nil {
			return fmt.Errorf("append %s: %w", t, err)
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the cached account. Unknown users have a zero balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*domainLedger.Account, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return &domainLedger.Account{UserID: userID}, nil
	}
	return acct, nil
}

// History lists a user's transactions, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domainLedger.Transaction, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// ChallengeEntries lists every transaction attributable to a challenge.
func (s *Service) ChallengeEntries(ctx context.Context, challengeID uuid.UUID) ([]*domainLedger.Transaction, error) {
	return s.repo.ListByChallenge(ctx, challengeID)
}

// Reconcile folds the full log of userID and compares it with the cached balance.
// A mismatch returns ErrBalanceMismatch along with the report.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	acct, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	folded, err := s.repo.SumByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	r := &Reconciliation{
		UserID:     userID,
		Cached:     acct.Balance,
		Folded:     folded,
		Consistent: acct.Balance == folded,
	}
	if !r.Consistent {
		s.logger.Error().
			Str("user_id", userID.String()).
			Int64("cached", r.Cached).
			Int64("folded", r.Folded).
			Msg("ledger balance mismatch")
		return r, fmt.Errorf("%w: user %s cached %d folded %d", domainLedger.ErrBalanceMismatch, userID, r.Cached, r.Folded)
	}
	return r, nil
}
