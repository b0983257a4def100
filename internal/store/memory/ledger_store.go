package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/store"
)

// LedgerStore is a mutex-guarded in-memory implementation of
// store.LedgerStore. Balances and the transaction log are kept together
// under one lock, so balance == sum(amounts) holds at every observation
// point.
type LedgerStore struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]int64
	transactions map[uuid.UUID][]*domain.LedgerTransaction
}

// Ensure LedgerStore implements store.LedgerStore
var _ store.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates an empty in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		balances:     make(map[uuid.UUID]int64),
		transactions: make(map[uuid.UUID][]*domain.LedgerTransaction),
	}
}

// Debit atomically checks and decrements the account balance, appending
// the matching negative-amount transaction.
func (s *LedgerStore) Debit(
	ctx context.Context,
	accountID uuid.UUID,
	amount int64,
	kind domain.TransactionKind,
	taskID *uuid.UUID,
	description string,
) (*domain.LedgerTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit amount must be positive", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[accountID] < amount {
		return nil, store.ErrInsufficientCredits
	}

	txn, err := domain.NewLedgerTransaction(accountID, -amount, kind, taskID, description)
	if err != nil {
		return nil, err
	}

	s.balances[accountID] -= amount
	s.transactions[accountID] = append(s.transactions[accountID], txn)

	return txn, nil
}

// Credit atomically increments the account balance, appending the
// matching positive-amount transaction.
func (s *LedgerStore) Credit(
	ctx context.Context,
	accountID uuid.UUID,
	amount int64,
	kind domain.TransactionKind,
	taskID *uuid.UUID,
	description string,
) (*domain.LedgerTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := domain.NewLedgerTransaction(accountID, amount, kind, taskID, description)
	if err != nil {
		return nil, err
	}

	s.balances[accountID] += amount
	s.transactions[accountID] = append(s.transactions[accountID], txn)

	return txn, nil
}

// Balance returns the account's current credit balance.
func (s *LedgerStore) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[accountID], nil
}

// ListTransactions retrieves the account's most recent transactions,
// newest first.
func (s *LedgerStore) ListTransactions(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
) ([]*domain.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.transactions[accountID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	result := make([]*domain.LedgerTransaction, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		txn := *all[i]
		result = append(result, &txn)
	}

	return result, nil
}

// WithTx returns the store itself; each operation is already atomic.
func (s *LedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return s
}
