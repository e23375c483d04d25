package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
)

const lockPollInterval = time.Millisecond

type txKey struct{}

// Store is an in-memory backend for every repository. A transaction holds the
// single writer lock for its whole duration and is rolled back from a snapshot
// on error, so readers never observe uncommitted state.
type Store struct {
	mu          sync.RWMutex
	lockTimeout time.Duration
	state       *state
}

type state struct {
	challenges   map[uuid.UUID]*challenge.Challenge
	challengeSeq int64
	trades       map[uuid.UUID]*trade.Trade
	tradeSeq     int64
	accounts     map[uuid.UUID]*ledger.Account
	transactions []*ledger.Transaction
	txSeq        int64
}

// NewStore creates an empty store. Transactions wait at most lockTimeout for the writer lock.
func NewStore(lockTimeout time.Duration) *Store {
	return &Store{
		lockTimeout: lockTimeout,
		state: &state{
			challenges: make(map[uuid.UUID]*challenge.Challenge),
			trades:     make(map[uuid.UUID]*trade.Trade),
			accounts:   make(map[uuid.UUID]*ledger.Account),
		},
	}
}

// WithinTx implements txn.Manager.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	deadline := time.Now().Add(s.lockTimeout)
	for !s.mu.TryLock() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: writer lock not acquired within %s", txn.ErrConcurrentModification, s.lockTimeout)
		}
		time.Sleep(lockPollInterval)
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// read runs fn under the read lock unless ctx already holds the writer lock.
func (s *Store) read(ctx context.Context, fn func(st *state)) {
	if !inTx(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	fn(s.state)
}

// write runs fn under the writer lock unless ctx already holds it.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.state)
	}
	return s.WithinTx(ctx, func(context.Context) error {
		return fn(s.state)
	})
}

func (st *state) clone() *state {
	out := &state{
		challenges:   make(map[uuid.UUID]*challenge.Challenge, len(st.challenges)),
		challengeSeq: st.challengeSeq,
		trades:       make(map[uuid.UUID]*trade.Trade, len(st.trades)),
		tradeSeq:     st.tradeSeq,
		accounts:     make(map[uuid.UUID]*ledger.Account, len(st.accounts)),
		transactions: append([]*ledger.Transaction(nil), st.transactions...),
		txSeq:        st.txSeq,
	}
	for k, v := range st.challenges {
		c := *v
		out.challenges[k] = &c
	}
	for k, v := range st.trades {
		out.trades[k] = v
	}
	for k, v := range st.accounts {
		a := *v
		out.accounts[k] = &a
	}
	return out
}

// Challenges returns the challenge repository.
func (s *Store) Challenges() *ChallengeStore {
	return &ChallengeStore{store: s}
}

// Trades returns the trade repository.
func (s *Store) Trades() *TradeStore {
	return &TradeStore{store: s}
}

// Ledger returns the token ledger repository.
func (s *Store) Ledger() *LedgerStore {
	return &LedgerStore{store: s}
}

// Stats returns the leaderboard repository.
func (s *Store) Stats() *StatsStore {
	return &StatsStore{store: s}
}

var _ txn.Manager = (*Store)(nil)
