package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/store"
)

// uniqueViolationCode is the PostgreSQL error code for unique constraint violations.
const uniqueViolationCode = "23505"

// PostgresAccountStore implements the store.AccountStore interface using PostgreSQL.
type PostgresAccountStore struct {
	db store.DBTX
}

// Ensure PostgresAccountStore implements store.AccountStore
var _ store.AccountStore = (*PostgresAccountStore)(nil)

// NewPostgresAccountStore creates a new PostgresAccountStore.
func NewPostgresAccountStore(db store.DBTX) *PostgresAccountStore {
	return &PostgresAccountStore{
		db: db,
	}
}

// WithTx returns a new store bound to the provided transaction.
func (s *PostgresAccountStore) WithTx(tx *sql.Tx) store.AccountStore {
	return &PostgresAccountStore{db: tx}
}

// Create persists a new account.
func (s *PostgresAccountStore) Create(ctx context.Context, account *domain.Account) error {
	log := logger.FromContext(ctx)

	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO accounts (id, email, hashed_password, credit_balance,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		strings.ToLower(account.Email),
		account.HashedPassword,
		account.CreditBalance,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return store.ErrEmailExists
		}
		log.Error("failed to save account", "account_id", account.ID, "error", err)
		return fmt.Errorf("failed to save account to database: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its unique ID.
func (s *PostgresAccountStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, email, hashed_password, credit_balance, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an account by its email address.
func (s *PostgresAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT id, email, hashed_password, credit_balance, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`

	return s.scanAccount(s.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

// scanAccount scans one account row.
func (s *PostgresAccountStore) scanAccount(row *sql.Row) (*domain.Account, error) {
	var account domain.Account

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.HashedPassword,
		&account.CreditBalance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}
