package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TransactionKind represents the business reason for a ledger transaction.
type TransactionKind string

// Possible transaction kind values
const (
	TransactionKindPurchase   TransactionKind = "purchase"
	TransactionKindGeneration TransactionKind = "generation"
	TransactionKindRefund     TransactionKind = "refund"
)

// Common validation errors for LedgerTransaction
var (
	ErrEmptyTransactionID        = errors.New("transaction ID cannot be empty")
	ErrEmptyTransactionAccountID = errors.New("transaction account ID cannot be empty")
	ErrZeroTransactionAmount     = errors.New("transaction amount cannot be zero")
)

// LedgerTransaction is a single entry in an account's credit ledger.
// Negative amounts are debits, positive amounts are credits. The account
// balance at any time equals the sum of all transaction amounts for that
// account.
type LedgerTransaction struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	TaskID      *uuid.UUID      `json:"task_id,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewLedgerTransaction creates a new LedgerTransaction for the given
// account. A non-nil taskID ties the transaction to the task whose
// admission or settlement produced it.
// Returns an error if validation fails.
func NewLedgerTransaction(
	accountID uuid.UUID,
	amount int64,
	kind TransactionKind,
	taskID *uuid.UUID,
	description string,
) (*LedgerTransaction, error) {
	txn := &LedgerTransaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		TaskID:      taskID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := txn.Validate(); err != nil {
		return nil, err
	}

	return txn, nil
}

// Validate checks if the LedgerTransaction has valid data.
// Returns an error if any field fails validation.
func (t *LedgerTransaction) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTransactionID
	}

	if t.AccountID == uuid.Nil {
		return ErrEmptyTransactionAccountID
	}

	if t.Amount == 0 {
		return ErrZeroTransactionAmount
	}

	if !isValidTransactionKind(t.Kind) {
		return ErrInvalidTransactionKind
	}

	return nil
}

// isValidTransactionKind checks if the given kind is a valid TransactionKind.
func isValidTransactionKind(kind TransactionKind) bool {
	switch kind {
	case TransactionKindPurchase, TransactionKindGeneration, TransactionKindRefund:
		return true
	default:
		return false
	}
}
