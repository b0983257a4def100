package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
)

// LedgerStore defines the interface for credit ledger persistence.
// Debit and Credit for a single account are linearizable: concurrent
// operations on the same account never lose updates, and a balance below
// zero is never observable.
type LedgerStore interface {
	// Debit atomically checks that the account balance covers amount and
	// decrements it, appending the matching ledger transaction with a
	// negative amount. The amount argument must be positive. Returns
	// ErrInsufficientCredits if the balance is too low; in that case
	// neither the balance nor the ledger is touched.
	Debit(
		ctx context.Context,
		accountID uuid.UUID,
		amount int64,
		kind domain.TransactionKind,
		taskID *uuid.UUID,
		description string,
	) (*domain.LedgerTransaction, error)

	// Credit atomically increments the account balance and appends the
	// matching ledger transaction with a positive amount. Used both for
	// purchases and for refunds. The amount argument must be positive.
	Credit(
		ctx context.Context,
		accountID uuid.UUID,
		amount int64,
		kind domain.TransactionKind,
		taskID *uuid.UUID,
		description string,
	) (*domain.LedgerTransaction, error)

	// Balance returns the account's current credit balance, always
	// consistent with the sum of its ledger transaction amounts.
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)

	// ListTransactions retrieves the account's most recent ledger
	// transactions, newest first, up to limit entries.
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.LedgerTransaction, error)

	// WithTx returns a new LedgerStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
