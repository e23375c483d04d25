package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/domain/ledger"
	"github.com/tradeduel/tradeduel/internal/domain/txn"
)

// LedgerStore is an in-memory implementation of ledger.Repository.
type LedgerStore struct {
	store *Store
}

// LockAccount returns a copy of the account, creating it on first use.
// Must run inside a transaction.
func (r *LedgerStore) LockAccount(ctx context.Context, userID uuid.UUID) (*ledger.Account, error) {
	if !inTx(ctx) {
		return nil, fmt.Errorf("lock account: no transaction in context")
	}
	acct, ok := r.store.state.accounts[userID]
	if !ok {
		acct = &ledger.Account{UserID: userID}
		r.store.state.accounts[userID] = acct
	}
	cp := *acct
	return &cp, nil
}

// Append inserts tx and stores acct if its version is current.
func (r *LedgerStore) Append(ctx context.Context, tx *ledger.Transaction, acct *ledger.Account) error {
	return r.store.write(ctx, func(st *state) error {
		cur, ok := st.accounts[acct.UserID]
		if ok && cur.Version != acct.Version {
			return fmt.Errorf("%w: account %s version %d, have %d", txn.ErrConcurrentModification, acct.UserID, cur.Version, acct.Version)
		}
		st.txSeq++
		tx.ID = st.txSeq
		cp := *tx
		st.transactions = append(st.transactions, &cp)
		acct.Version++
		stored := *acct
		st.accounts[acct.UserID] = &stored
		return nil
	})
}

// GetAccount returns the cached account or nil.
func (r *LedgerStore) GetAccount(ctx context.Context, userID uuid.UUID) (*ledger.Account, error) {
	var out *ledger.Account
	r.store.read(ctx, func(st *state) {
		if a, ok := st.accounts[userID]; ok {
			cp := *a
			out = &cp
		}
	})
	return out, nil
}

// ListByUser returns a user's transactions, newest first.
func (r *LedgerStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ledger.Transaction, error) {
	var result []*ledger.Transaction
	r.store.read(ctx, func(st *state) {
		for i := len(st.transactions) - 1; i >= 0; i-- {
			if tx := st.transactions[i]; tx.UserID == userID {
				cp := *tx
				result = append(result, &cp)
			}
		}
	})
	return page(result, limit, offset), nil
}

// ListByChallenge returns transactions linked to a challenge in append order.
func (r *LedgerStore) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]*ledger.Transaction, error) {
	var result []*ledger.Transaction
	r.store.read(ctx, func(st *state) {
		for _, tx := range st.transactions {
			if tx.ChallengeID != nil && *tx.ChallengeID == challengeID {
				cp := *tx
				result = append(result, &cp)
			}
		}
	})
	return result, nil
}

// SumByUser folds a user's full log.
func (r *LedgerStore) SumByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	r.store.read(ctx, func(st *state) {
		for _, tx := range st.transactions {
			if tx.UserID == userID {
				total += tx.Amount
			}
		}
	})
	return total, nil
}

var _ ledger.Repository = (*LedgerStore)(nil)
