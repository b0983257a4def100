package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/store"
)

// PostgresLedgerStore implements the store.LedgerStore interface using
// PostgreSQL. The balance check and decrement happen in one conditional
// UPDATE, so concurrent debits on the same account serialize on the row
// and the balance never goes negative.
//
// Callers that need the balance mutation and the ledger row to land
// atomically with other writes (admission, settlement) should operate on
// a transaction via WithTx.
type PostgresLedgerStore struct {
	db store.DBTX
}

// Ensure PostgresLedgerStore implements store.LedgerStore
var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// NewPostgresLedgerStore creates a new PostgresLedgerStore.
func NewPostgresLedgerStore(db store.DBTX) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// WithTx returns a new store bound to the provided transaction.
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &PostgresLedgerStore{db: tx}
}

// Debit atomically checks and decrements the account balance, then
// appends the matching negative-amount ledger transaction.
func (s *PostgresLedgerStore) Debit(
	ctx context.Context,
	accountID uuid.UUID,
	amount int64,
	kind domain.TransactionKind,
	taskID *uuid.UUID,
	description string,
) (*domain.LedgerTransaction, error) {
	log := logger.FromContext(ctx)

	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit amount must be positive", store.ErrInvalidEntity)
	}

	query := `
		UPDATE accounts
		SET credit_balance = credit_balance - $1, updated_at = $2
		WHERE id = $3 AND credit_balance >= $1
	`

	result, err := s.db.ExecContext(ctx, query, amount, time.Now().UTC(), accountID)
	if err != nil {
		log.Error("failed to debit account", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish a missing account from an uncovered balance.
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check account existence: %w", err)
		}
		if !exists {
			return nil, store.ErrAccountNotFound
		}
		return nil, store.ErrInsufficientCredits
	}

	return s.insertTransaction(ctx, accountID, -amount, kind, taskID, description)
}

// Credit atomically increments the account balance, then appends the
// matching positive-amount ledger transaction.
func (s *PostgresLedgerStore) Credit(
	ctx context.Context,
	accountID uuid.UUID,
	amount int64,
	kind domain.TransactionKind,
	taskID *uuid.UUID,
	description string,
) (*domain.LedgerTransaction, error) {
	log := logger.FromContext(ctx)

	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", store.ErrInvalidEntity)
	}

	query := `
		UPDATE accounts
		SET credit_balance = credit_balance + $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, amount, time.Now().UTC(), accountID)
	if err != nil {
		log.Error("failed to credit account", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, store.ErrAccountNotFound
	}

	return s.insertTransaction(ctx, accountID, amount, kind, taskID, description)
}

// insertTransaction appends one ledger row matching a balance mutation.
func (s *PostgresLedgerStore) insertTransaction(
	ctx context.Context,
	accountID uuid.UUID,
	amount int64,
	kind domain.TransactionKind,
	taskID *uuid.UUID,
	description string,
) (*domain.LedgerTransaction, error) {
	txn, err := domain.NewLedgerTransaction(accountID, amount, kind, taskID, description)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO ledger_transactions (id, account_id, amount, kind, task_id,
			description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		txn.ID,
		txn.AccountID,
		txn.Amount,
		txn.Kind,
		txn.TaskID,
		txn.Description,
		txn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger transaction: %w", err)
	}

	return txn, nil
}

// Balance returns the account's current credit balance.
func (s *PostgresLedgerStore) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT credit_balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get account balance: %w", err)
	}

	return balance, nil
}

// ListTransactions retrieves the account's most recent transactions,
// newest first.
func (s *PostgresLedgerStore) ListTransactions(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
) ([]*domain.LedgerTransaction, error) {
	log := logger.FromContext(ctx)

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, amount, kind, task_id, description, created_at
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		log.Error("failed to query ledger transactions", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to query ledger transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []*domain.LedgerTransaction
	for rows.Next() {
		var txn domain.LedgerTransaction
		var taskID uuid.NullUUID
		var description sql.NullString

		err := rows.Scan(
			&txn.ID,
			&txn.AccountID,
			&txn.Amount,
			&txn.Kind,
			&taskID,
			&description,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger transaction row: %w", err)
		}

		if taskID.Valid {
			id := taskID.UUID
			txn.TaskID = &id
		}
		txn.Description = description.String

		transactions = append(transactions, &txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger transaction rows: %w", err)
	}

	return transactions, nil
}
