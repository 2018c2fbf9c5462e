package repository

import (
	"context"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
)

// UserRepository is the Credential Store. Implementations store emails in
// domain.NormalizeEmail form and report a clash with apperrors.ErrDuplicateEmail.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID returns apperrors.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail looks the user up case-insensitively. Returns
	// apperrors.ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update modifies an existing user.
	Update(ctx context.Context, user *domain.User) error
}

// SessionRegistry tracks which refresh tokens may currently be redeemed.
// Entries are keyed by domain.HashToken of the raw token. All methods must be
// safe for concurrent use.
type SessionRegistry interface {
	// Register adds a session to the valid set.
	Register(ctx context.Context, session *domain.Session) error

	// IsValid reports whether the hash is present, unrevoked and unexpired.
	IsValid(ctx context.Context, tokenHash string) (bool, error)

	// Revoke removes the hash from the valid set. Revoking an unknown or
	// already revoked hash is a no-op.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllForUser revokes every session of the user.
	RevokeAllForUser(ctx context.Context, userID string) error
}
