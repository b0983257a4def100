package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenVerifier resolves a bearer token to the account it was issued for.
// Both the HTTP middleware and the notification channel's authenticate
// handshake consume this narrow interface.
type TokenVerifier interface {
	// VerifyToken validates the token string and returns the account ID
	// it was issued for, or an error if validation fails (expired,
	// invalid signature, etc.).
	VerifyToken(ctx context.Context, tokenString string) (uuid.UUID, error)
}

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	TokenVerifier

	// GenerateToken creates a signed JWT access token for the account.
	// Returns the token string or an error if token generation fails.
	GenerateToken(ctx context.Context, accountID uuid.UUID) (string, error)
}

// Claims represents the validated claims extracted from a token.
type Claims struct {
	// AccountID is the account the token was issued for.
	AccountID uuid.UUID

	// IssuedAt and ExpiresAt are the standard time claims.
	IssuedAt  time.Time
	ExpiresAt time.Time
}
