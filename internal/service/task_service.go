package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/config"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/events"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/store"
)

// TaskService owns task admission, cancellation, queries, and settlement.
// Admission and settlement combine a task write with a ledger mutation;
// both run inside one database transaction so balance and task status are
// never observably inconsistent.
type TaskService struct {
	db          *sql.DB
	taskStore   store.TaskStore
	ledgerStore store.LedgerStore
	credits     config.CreditsConfig
	notifier    events.Notifier
}

// NewTaskService creates a TaskService. db may be nil when the stores are
// not transactional (the in-memory implementations); operations then run
// without a wrapping transaction.
func NewTaskService(
	db *sql.DB,
	taskStore store.TaskStore,
	ledgerStore store.LedgerStore,
	credits config.CreditsConfig,
	notifier events.Notifier,
) *TaskService {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &TaskService{
		db:          db,
		taskStore:   taskStore,
		ledgerStore: ledgerStore,
		credits:     credits,
		notifier:    notifier,
	}
}

// inTx runs fn against transaction-bound stores when a database is
// available, and directly against the configured stores otherwise.
func (s *TaskService) inTx(
	ctx context.Context,
	fn func(tasks store.TaskStore, ledger store.LedgerStore) error,
) error {
	if s.db == nil {
		return fn(s.taskStore, s.ledgerStore)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(s.taskStore.WithTx(tx), s.ledgerStore.WithTx(tx))
	})
}

// AdmitTask validates the task type, debits the owner's credits, and
// creates the pending task, all in one atomic step. Returns
// ErrInsufficientCredits with no side effects if the balance does not
// cover the type's configured cost.
func (s *TaskService) AdmitTask(
	ctx context.Context,
	ownerID uuid.UUID,
	taskType domain.TaskType,
	priority int,
	correlationID uuid.UUID,
) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	cost, ok := s.credits.CostFor(string(taskType))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTaskType, taskType)
	}

	task, err := domain.NewTask(ownerID, taskType, cost, priority, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to build task: %w", err)
	}

	if s.db == nil {
		err = s.admitDirect(ctx, task)
	} else {
		// The ledger row references the task, so the task insert has to
		// come first; the transaction makes the pair atomic.
		err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			tasks := s.taskStore.WithTx(tx)
			ledger := s.ledgerStore.WithTx(tx)

			if err := tasks.Create(ctx, task); err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}
			return s.debitCost(ctx, ledger, task)
		})
	}
	if err != nil {
		return nil, err
	}

	log.Info("task admitted",
		"task_id", task.ID,
		"task_type", task.Type,
		"owner_id", ownerID,
		"credits_cost", cost)

	return task, nil
}

// admitDirect admits a task against non-transactional stores. Debiting
// before creating means a rejected debit leaves no trace of the task.
func (s *TaskService) admitDirect(ctx context.Context, task *domain.Task) error {
	if err := s.debitCost(ctx, s.ledgerStore, task); err != nil {
		return err
	}

	if err := s.taskStore.Create(ctx, task); err != nil {
		if task.CreditsCost > 0 {
			if _, creditErr := s.ledgerStore.Credit(ctx, task.OwnerID, task.CreditsCost,
				domain.TransactionKindRefund, &task.ID, "reversal of failed admission"); creditErr != nil {
				logger.FromContext(ctx).Error("failed to reverse debit after create failure",
					"task_id", task.ID, "error", creditErr)
			}
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// debitCost charges the task's credit cost to its owner, mapping store
// errors to service sentinels. Free task types skip the ledger entirely.
func (s *TaskService) debitCost(ctx context.Context, ledger store.LedgerStore, task *domain.Task) error {
	if task.CreditsCost == 0 {
		return nil
	}

	_, err := ledger.Debit(ctx, task.OwnerID, task.CreditsCost, domain.TransactionKindGeneration,
		&task.ID, fmt.Sprintf("%s generation", task.Type))
	if err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) {
			return ErrInsufficientCredits
		}
		if errors.Is(err, store.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to debit credits: %w", err)
	}
	return nil
}

// CancelTask transitions a pending or processing task to cancelled and
// refunds its credit cost. The refund is tied to winning the terminal
// transition, so a task is never refunded twice. Cancelling a processing
// task does not interrupt its in-flight execution; the executor's late
// result is discarded by the conditional settlement writes.
func (s *TaskService) CancelTask(ctx context.Context, taskID, requesterID uuid.UUID) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	var cancelled *domain.Task
	err := s.inTx(ctx, func(tasks store.TaskStore, ledger store.LedgerStore) error {
		task, err := tasks.GetByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		// Tasks are visible only to their owner.
		if task.OwnerID != requesterID {
			return ErrTaskNotFound
		}

		cancelled, err = tasks.Cancel(ctx, taskID)
		if err != nil {
			if errors.Is(err, store.ErrNotCancellable) {
				return ErrNotCancellable
			}
			return fmt.Errorf("failed to cancel task: %w", err)
		}

		return s.refund(ctx, ledger, cancelled, "cancelled")
	})
	if err != nil {
		return nil, err
	}

	log.Info("task cancelled",
		"task_id", cancelled.ID,
		"owner_id", cancelled.OwnerID,
		"refunded", cancelled.CreditsCost)

	s.notifier.Notify(ctx, cancelled.OwnerID, events.NewTaskUpdate(cancelled, 0))
	return cancelled, nil
}

// CompleteTask settles a processing task as completed and pushes the
// completion event. Settling a task that was cancelled mid-flight is a
// recognized race: the conditional write loses, the result is discarded,
// and no event is pushed.
func (s *TaskService) CompleteTask(ctx context.Context, task *domain.Task, result map[string]any) error {
	err := s.inTx(ctx, func(tasks store.TaskStore, ledger store.LedgerStore) error {
		return tasks.Complete(ctx, task.ID, result)
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			logger.FromContext(ctx).Info("discarding settlement of already-terminal task",
				"task_id", task.ID, "outcome", "completed")
			return nil
		}
		return fmt.Errorf("failed to complete task: %w", err)
	}

	s.notifier.Notify(ctx, task.OwnerID, events.NewTaskCompleted(task, result))
	return nil
}

// FailTask settles a processing task as failed, refunds its credit cost,
// and pushes the failure event. The refund happens in the same
// transaction as the terminal write, so balance and status change
// together, exactly once.
func (s *TaskService) FailTask(ctx context.Context, task *domain.Task, errorMessage string) error {
	err := s.inTx(ctx, func(tasks store.TaskStore, ledger store.LedgerStore) error {
		if err := tasks.Fail(ctx, task.ID, errorMessage); err != nil {
			return err
		}
		return s.refund(ctx, ledger, task, "failed")
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			logger.FromContext(ctx).Info("discarding settlement of already-terminal task",
				"task_id", task.ID, "outcome", "failed")
			return nil
		}
		return fmt.Errorf("failed to fail task: %w", err)
	}

	s.notifier.Notify(ctx, task.OwnerID, events.NewTaskFailed(task, errorMessage))
	return nil
}

// refund credits a task's full cost back to its owner. Callers invoke it
// only after winning the task's terminal transition, which is what makes
// the refund exactly-once.
func (s *TaskService) refund(ctx context.Context, ledger store.LedgerStore, task *domain.Task, reason string) error {
	if task.CreditsCost == 0 {
		return nil
	}

	_, err := ledger.Credit(ctx, task.OwnerID, task.CreditsCost, domain.TransactionKindRefund,
		&task.ID, fmt.Sprintf("refund for %s %s task", reason, task.Type))
	if err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}
	return nil
}

// GetTask retrieves a task, visible only to its owner.
func (s *TaskService) GetTask(ctx context.Context, taskID, requesterID uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	if task.OwnerID != requesterID {
		return nil, ErrTaskNotFound
	}

	return task, nil
}

// ListActive retrieves the account's pending and processing tasks.
func (s *TaskService) ListActive(ctx context.Context, accountID uuid.UUID) ([]*domain.Task, error) {
	return s.taskStore.ListActive(ctx, accountID)
}

// ListHistory retrieves a page of the account's terminal tasks.
func (s *TaskService) ListHistory(
	ctx context.Context,
	accountID uuid.UUID,
	page, pageSize int,
) ([]*domain.Task, error) {
	return s.taskStore.ListHistory(ctx, accountID, page, pageSize)
}

// Balance returns the account's current credit balance.
func (s *TaskService) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	balance, err := s.ledgerStore.Balance(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// LedgerHistory returns the account's most recent ledger transactions.
func (s *TaskService) LedgerHistory(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
) ([]*domain.LedgerTransaction, error) {
	return s.ledgerStore.ListTransactions(ctx, accountID, limit)
}

// PurchaseCredits credits an account with purchased credits. Payment
// capture itself happens outside this core; this records the outcome.
func (s *TaskService) PurchaseCredits(
	ctx context.Context,
	accountID uuid.UUID,
	amount int64,
	description string,
) (*domain.LedgerTransaction, error) {
	txn, err := s.ledgerStore.Credit(ctx, accountID, amount, domain.TransactionKindPurchase, nil, description)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return txn, nil
}
