package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/tradeduel/tradeduel/internal/domain/ledger"
)

// MockRepository is a mock implementation of ledger.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) LockAccount(ctx context.Context, userID uuid.UUID) (*ledger.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func (m *MockRepository) Append(ctx context.Context, tx *ledger.Transaction, acct *ledger.Account) error {
	args := m.Called(ctx, tx, acct)
	return args.Error(0)
}

func (m *MockRepository) GetAccount(ctx context.Context, userID uuid.UUID) (*ledger.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ledger.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Transaction), args.Error(1)
}

func (m *MockRepository) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]*ledger.Transaction, error) {
	args := m.Called(ctx, challengeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Transaction), args.Error(1)
}

func (m *MockRepository) SumByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

var _ ledger.Repository = (*MockRepository)(nil)
