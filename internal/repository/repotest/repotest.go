// Package repotest holds behaviour tests every repository backend must pass.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository"
	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
)

// NewUser returns a student with a fresh id.
func NewUser(email string) *domain.User {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Jane",
		PasswordHash: "$2a$08$hash",
		Role:         domain.RoleStudent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewSession returns a session for userID expiring after ttl.
func NewSession(userID string, ttl time.Duration) *domain.Session {
	now := time.Now().UTC().Truncate(time.Second)
	id := uuid.NewString()
	return &domain.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: domain.HashToken("token-" + id),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// RunUserRepository exercises a Credential Store implementation.
func RunUserRepository(t *testing.T, newRepo func(t *testing.T) repository.UserRepository) {
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		repo := newRepo(t)
		u := NewUser("Jane@X.com")
		u.City = "Pune"
		require.NoError(t, repo.Create(ctx, u))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "jane@x.com", got.Email)
		assert.Equal(t, "Pune", got.City)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)

		got, err = repo.GetByEmail(ctx, "JANE@x.COM")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("duplicate email is case-insensitive", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewUser("jane@x.com")))

		err := repo.Create(ctx, NewUser("JANE@X.COM"))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
	})

	t.Run("missing user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = repo.GetByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		repo := newRepo(t)
		u := NewUser("jane@x.com")
		require.NoError(t, repo.Create(ctx, u))

		u.Name = "Jane Doe"
		u.Role = domain.RoleAdmin
		require.NoError(t, repo.Update(ctx, u))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", got.Name)
		assert.Equal(t, domain.RoleAdmin, got.Role)

		missing := NewUser("ghost@x.com")
		assert.ErrorIs(t, repo.Update(ctx, missing), apperrors.ErrNotFound)
	})
}

// RunSessionRegistry exercises a Session Registry implementation.
func RunSessionRegistry(t *testing.T, newRegistry func(t *testing.T) repository.SessionRegistry) {
	ctx := context.Background()

	t.Run("register then valid", func(t *testing.T) {
		reg := newRegistry(t)
		s := NewSession("u-1", time.Hour)
		require.NoError(t, reg.Register(ctx, s))

		ok, err := reg.IsValid(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown is invalid", func(t *testing.T) {
		reg := newRegistry(t)
		ok, err := reg.IsValid(ctx, domain.HashToken("never-registered"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("revoke is immediate and idempotent", func(t *testing.T) {
		reg := newRegistry(t)
		s := NewSession("u-1", time.Hour)
		require.NoError(t, reg.Register(ctx, s))

		require.NoError(t, reg.Revoke(ctx, s.TokenHash))
		ok, err := reg.IsValid(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, reg.Revoke(ctx, s.TokenHash))
		require.NoError(t, reg.Revoke(ctx, domain.HashToken("absent")))
	})

	t.Run("sessions are independent", func(t *testing.T) {
		reg := newRegistry(t)
		a := NewSession("u-1", time.Hour)
		b := NewSession("u-1", time.Hour)
		require.NoError(t, reg.Register(ctx, a))
		require.NoError(t, reg.Register(ctx, b))

		require.NoError(t, reg.Revoke(ctx, a.TokenHash))
		ok, err := reg.IsValid(ctx, b.TokenHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("revoke all for user", func(t *testing.T) {
		reg := newRegistry(t)
		a := NewSession("u-1", time.Hour)
		b := NewSession("u-1", time.Hour)
		other := NewSession("u-2", time.Hour)
		for _, s := range []*domain.Session{a, b, other} {
			require.NoError(t, reg.Register(ctx, s))
		}

		require.NoError(t, reg.RevokeAllForUser(ctx, "u-1"))
		for _, s := range []*domain.Session{a, b} {
			ok, err := reg.IsValid(ctx, s.TokenHash)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		ok, err := reg.IsValid(ctx, other.TokenHash)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, reg.RevokeAllForUser(ctx, "nobody"))
	})

	t.Run("expired is invalid", func(t *testing.T) {
		reg := newRegistry(t)
		s := NewSession("u-1", -time.Minute)
		require.NoError(t, reg.Register(ctx, s))

		ok, err := reg.IsValid(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent use", func(t *testing.T) {
		reg := newRegistry(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s := NewSession("u-c", time.Hour)
				assert.NoError(t, reg.Register(ctx, s))
				ok, err := reg.IsValid(ctx, s.TokenHash)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.NoError(t, reg.Revoke(ctx, s.TokenHash))
			}()
		}
		wg.Wait()
	})
}
