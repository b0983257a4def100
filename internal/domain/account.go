package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Account
var (
	ErrEmptyAccountID    = errors.New("account ID cannot be empty")
	ErrEmptyAccountEmail = errors.New("account email cannot be empty")
)

// Account represents a registered user of the platform. CreditBalance is
// denormalized from the ledger for fast admission checks; the ledger
// remains the source of truth.
type Account struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	CreditBalance  int64     `json:"credit_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewAccount creates a new Account with the given email and an already
// hashed password. The caller is responsible for hashing; domain entities
// never see plaintext credentials.
// Returns an error if validation fails.
func NewAccount(email, hashedPassword string) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		ID:             uuid.New(),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		HashedPassword: hashedPassword,
		CreditBalance:  0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}

	return account, nil
}

// Validate checks if the Account has valid data.
// Returns an error if any field fails validation.
func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyAccountID
	}

	if a.Email == "" {
		return ErrEmptyAccountEmail
	}

	if !strings.Contains(a.Email, "@") {
		return ErrInvalidEmail
	}

	return nil
}
