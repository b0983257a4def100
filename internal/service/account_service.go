package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/service/auth"
	"github.com/storyforge/storyforge-api/internal/store"
)

// AccountService handles account registration and credential verification.
type AccountService struct {
	db           *sql.DB
	accountStore store.AccountStore
	ledgerStore  store.LedgerStore
	hasher       auth.PasswordHasher
	signupBonus  int64
}

// NewAccountService creates an AccountService. db may be nil when the
// stores are not transactional (the in-memory implementations).
func NewAccountService(
	db *sql.DB,
	accountStore store.AccountStore,
	ledgerStore store.LedgerStore,
	hasher auth.PasswordHasher,
	signupBonus int64,
) *AccountService {
	return &AccountService{
		db:           db,
		accountStore: accountStore,
		ledgerStore:  ledgerStore,
		hasher:       hasher,
		signupBonus:  signupBonus,
	}
}

// Register creates a new account with a hashed password and credits the
// configured signup bonus. Returns ErrEmailTaken if the email is already
// registered.
func (s *AccountService) Register(ctx context.Context, email, password string) (*domain.Account, error) {
	log := logger.FromContext(ctx)

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := domain.NewAccount(email, hashed)
	if err != nil {
		return nil, fmt.Errorf("failed to build account: %w", err)
	}

	create := func(accounts store.AccountStore, ledger store.LedgerStore) error {
		if err := accounts.Create(ctx, account); err != nil {
			if errors.Is(err, store.ErrEmailExists) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to create account: %w", err)
		}

		if s.signupBonus > 0 {
			_, err := ledger.Credit(ctx, account.ID, s.signupBonus,
				domain.TransactionKindPurchase, nil, "signup bonus")
			if err != nil {
				return fmt.Errorf("failed to grant signup bonus: %w", err)
			}
			account.CreditBalance = s.signupBonus
		}

		return nil
	}

	if s.db == nil {
		err = create(s.accountStore, s.ledgerStore)
	} else {
		err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			return create(s.accountStore.WithTx(tx), s.ledgerStore.WithTx(tx))
		})
	}
	if err != nil {
		return nil, err
	}

	log.Info("account registered",
		"account_id", account.ID,
		"signup_bonus", s.signupBonus)

	return account, nil
}

// Authenticate verifies the email and password pair and returns the
// matching account. Returns ErrInvalidCredentials for an unknown email or
// a wrong password, without distinguishing the two.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.accountStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := s.hasher.Compare(account.HashedPassword, password); err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	return account, nil
}

// GetAccount retrieves an account by ID.
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accountStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}
