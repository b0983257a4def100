package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/storyforge-api/internal/domain"
)

// Common request/response structures

// RegisterRequest defines the payload for the account registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Token     string    `json:"token"`
	Balance   int64     `json:"credit_balance"`
}

// CreateTaskRequest defines the payload for task admission.
type CreateTaskRequest struct {
	Type          string    `json:"type"           validate:"required"`
	Priority      int       `json:"priority"       validate:"gte=-100,lte=100"`
	CorrelationID uuid.UUID `json:"correlation_id" validate:"required"`
}

// TaskResponse is the wire representation of a task.
type TaskResponse struct {
	ID            uuid.UUID      `json:"id"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	Priority      int            `json:"priority"`
	CreditsCost   int64          `json:"credits_cost"`
	CorrelationID uuid.UUID      `json:"correlation_id"`
	Error         string         `json:"error,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewTaskResponse converts a domain task to its wire representation.
func NewTaskResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:            task.ID,
		Type:          string(task.Type),
		Status:        string(task.Status),
		Priority:      task.Priority,
		CreditsCost:   task.CreditsCost,
		CorrelationID: task.CorrelationID,
		Error:         task.Error,
		Result:        task.Result,
		CreatedAt:     task.CreatedAt,
		StartedAt:     task.StartedAt,
		CompletedAt:   task.CompletedAt,
	}
}

// TaskListResponse wraps a list of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// NewTaskListResponse converts a slice of domain tasks.
func NewTaskListResponse(tasks []*domain.Task) TaskListResponse {
	out := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, task := range tasks {
		out.Tasks = append(out.Tasks, NewTaskResponse(task))
	}
	return out
}

// BalanceResponse reports an account's current credit balance.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// PurchaseRequest defines the payload for crediting purchased credits.
// Payment capture happens upstream; this records the outcome.
type PurchaseRequest struct {
	Amount      int64  `json:"amount"      validate:"required,gt=0"`
	Description string `json:"description" validate:"max=200"`
}

// TransactionResponse is the wire representation of a ledger transaction.
type TransactionResponse struct {
	ID          uuid.UUID  `json:"id"`
	Amount      int64      `json:"amount"`
	Kind        string     `json:"kind"`
	TaskID      *uuid.UUID `json:"task_id,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TransactionListResponse wraps a list of ledger transactions.
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// NewTransactionListResponse converts a slice of ledger transactions.
func NewTransactionListResponse(txns []*domain.LedgerTransaction) TransactionListResponse {
	out := TransactionListResponse{Transactions: make([]TransactionResponse, 0, len(txns))}
	for _, txn := range txns {
		out.Transactions = append(out.Transactions, TransactionResponse{
			ID:          txn.ID,
			Amount:      txn.Amount,
			Kind:        string(txn.Kind),
			TaskID:      txn.TaskID,
			Description: txn.Description,
			CreatedAt:   txn.CreatedAt,
		})
	}
	return out
}
