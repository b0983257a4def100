package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/store"
)

func mustCreateTask(t *testing.T, s *TaskStore, ownerID uuid.UUID, priority int) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(ownerID, domain.TaskTypeChapter, 10, priority, uuid.New())
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), task))
	return task
}

func TestTaskStoreClaimNext(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ErrNoPendingTasks when empty", func(t *testing.T) {
		s := NewTaskStore()
		_, err := s.ClaimNext(ctx)
		assert.ErrorIs(t, err, store.ErrNoPendingTasks)
	})

	t.Run("claims by priority then age", func(t *testing.T) {
		s := NewTaskStore()
		owner := uuid.New()
		low := mustCreateTask(t, s, owner, 0)
		high := mustCreateTask(t, s, owner, 5)
		_ = low

		claimed, err := s.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, high.ID, claimed.ID)
		assert.Equal(t, domain.TaskStatusProcessing, claimed.Status)
		require.NotNil(t, claimed.StartedAt)
	})

	t.Run("claimed task is not claimable again", func(t *testing.T) {
		s := NewTaskStore()
		mustCreateTask(t, s, uuid.New(), 0)

		_, err := s.ClaimNext(ctx)
		require.NoError(t, err)

		_, err = s.ClaimNext(ctx)
		assert.ErrorIs(t, err, store.ErrNoPendingTasks)
	})
}

// TestTaskStoreConcurrentClaims runs several claimers against a shared
// pending set and verifies every task is claimed by exactly one of them.
func TestTaskStoreConcurrentClaims(t *testing.T) {
	const claimers = 8
	const taskCount = 200

	s := NewTaskStore()
	owner := uuid.New()
	for i := 0; i < taskCount; i++ {
		mustCreateTask(t, s, owner, i%3)
	}

	var mu sync.Mutex
	claimedBy := make(map[uuid.UUID]int)
	var claimErrs []error

	var wg sync.WaitGroup
	for c := 0; c < claimers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := s.ClaimNext(context.Background())
				if errors.Is(err, store.ErrNoPendingTasks) {
					return
				}
				if err != nil {
					mu.Lock()
					claimErrs = append(claimErrs, err)
					mu.Unlock()
					return
				}

				mu.Lock()
				claimedBy[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Empty(t, claimErrs)

	assert.Len(t, claimedBy, taskCount)
	for id, count := range claimedBy {
		assert.Equal(t, 1, count, "task %s claimed %d times", id, count)
	}
}

func TestTaskStoreSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("complete requires processing status", func(t *testing.T) {
		s := NewTaskStore()
		task := mustCreateTask(t, s, uuid.New(), 0)

		err := s.Complete(ctx, task.ID, map[string]any{"words": 1200})
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("complete records result", func(t *testing.T) {
		s := NewTaskStore()
		task := mustCreateTask(t, s, uuid.New(), 0)
		_, err := s.ClaimNext(ctx)
		require.NoError(t, err)

		require.NoError(t, s.Complete(ctx, task.ID, map[string]any{"words": 1200}))

		got, err := s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, got.Status)
		assert.Equal(t, 1200, got.Result["words"])
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("fail records error message", func(t *testing.T) {
		s := NewTaskStore()
		task := mustCreateTask(t, s, uuid.New(), 0)
		_, err := s.ClaimNext(ctx)
		require.NoError(t, err)

		require.NoError(t, s.Fail(ctx, task.ID, "provider timeout"))

		got, err := s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, got.Status)
		assert.Equal(t, "provider timeout", got.Error)
	})

	t.Run("settling a cancelled task is rejected", func(t *testing.T) {
		s := NewTaskStore()
		task := mustCreateTask(t, s, uuid.New(), 0)
		_, err := s.ClaimNext(ctx)
		require.NoError(t, err)

		_, err = s.Cancel(ctx, task.ID)
		require.NoError(t, err)

		assert.ErrorIs(t, s.Complete(ctx, task.ID, nil), store.ErrInvalidTransition)
		assert.ErrorIs(t, s.Fail(ctx, task.ID, "late failure"), store.ErrInvalidTransition)
	})

	t.Run("cancel of terminal task returns ErrNotCancellable", func(t *testing.T) {
		s := NewTaskStore()
		task := mustCreateTask(t, s, uuid.New(), 0)
		_, err := s.Cancel(ctx, task.ID)
		require.NoError(t, err)

		_, err = s.Cancel(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrNotCancellable)
	})
}

func TestTaskStoreListing(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	owner := uuid.New()
	other := uuid.New()

	active := mustCreateTask(t, s, owner, 0)
	done := mustCreateTask(t, s, owner, 0)
	mustCreateTask(t, s, other, 0)

	_, err := s.Cancel(ctx, done.ID)
	require.NoError(t, err)

	t.Run("list active scopes to owner", func(t *testing.T) {
		tasks, err := s.ListActive(ctx, owner)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, active.ID, tasks[0].ID)
	})

	t.Run("list history returns terminal only", func(t *testing.T) {
		tasks, err := s.ListHistory(ctx, owner, 1, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, done.ID, tasks[0].ID)
	})

	t.Run("page past end is empty", func(t *testing.T) {
		tasks, err := s.ListHistory(ctx, owner, 5, 10)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestLedgerStore(t *testing.T) {
	ctx := context.Background()

	t.Run("debit rejects insufficient balance", func(t *testing.T) {
		s := NewLedgerStore()
		account := uuid.New()

		_, err := s.Credit(ctx, account, 5, domain.TransactionKindPurchase, nil, "starter pack")
		require.NoError(t, err)

		_, err = s.Debit(ctx, account, 10, domain.TransactionKindGeneration, nil, "chapter")
		assert.ErrorIs(t, err, store.ErrInsufficientCredits)

		balance, err := s.Balance(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, int64(5), balance)

		txns, err := s.ListTransactions(ctx, account, 0)
		require.NoError(t, err)
		assert.Len(t, txns, 1, "failed debit must not append a transaction")
	})

	t.Run("balance equals sum of transaction amounts", func(t *testing.T) {
		s := NewLedgerStore()
		account := uuid.New()

		_, err := s.Credit(ctx, account, 100, domain.TransactionKindPurchase, nil, "purchase")
		require.NoError(t, err)
		_, err = s.Debit(ctx, account, 30, domain.TransactionKindGeneration, nil, "book")
		require.NoError(t, err)
		_, err = s.Credit(ctx, account, 30, domain.TransactionKindRefund, nil, "refund")
		require.NoError(t, err)

		balance, err := s.Balance(ctx, account)
		require.NoError(t, err)

		txns, err := s.ListTransactions(ctx, account, 0)
		require.NoError(t, err)

		var sum int64
		for _, txn := range txns {
			sum += txn.Amount
		}
		assert.Equal(t, balance, sum)
		assert.Equal(t, int64(100), balance)
	})

	t.Run("concurrent debits never overdraw", func(t *testing.T) {
		s := NewLedgerStore()
		account := uuid.New()

		_, err := s.Credit(ctx, account, 10, domain.TransactionKindPurchase, nil, "purchase")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var succeeded sync.Map
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.Debit(ctx, account, 1, domain.TransactionKindGeneration, nil, "unit"); err == nil {
					succeeded.Store(i, true)
				}
			}(i)
		}
		wg.Wait()

		var wins int
		succeeded.Range(func(_, _ any) bool {
			wins++
			return true
		})
		assert.Equal(t, 10, wins)

		balance, err := s.Balance(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})
}

func TestAccountStore(t *testing.T) {
	ctx := context.Background()

	t.Run("create then fetch by email", func(t *testing.T) {
		s := NewAccountStore()
		account, err := domain.NewAccount("writer@example.com", "hashed")
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, account))

		got, err := s.GetByEmail(ctx, "WRITER@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		s := NewAccountStore()
		first, err := domain.NewAccount("writer@example.com", "hashed")
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, first))

		second, err := domain.NewAccount("writer@example.com", "hashed")
		require.NoError(t, err)
		assert.ErrorIs(t, s.Create(ctx, second), store.ErrEmailExists)
	})

	t.Run("missing account returns not found", func(t *testing.T) {
		s := NewAccountStore()
		_, err := s.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}
