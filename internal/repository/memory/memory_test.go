package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mukulsharnagat01/Collegedunia/internal/repository"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository/repotest"
)

func TestUserRepository(t *testing.T) {
	repotest.RunUserRepository(t, func(*testing.T) repository.UserRepository {
		return NewUserRepository()
	})
}

func TestSessionRegistry(t *testing.T) {
	repotest.RunSessionRegistry(t, func(*testing.T) repository.SessionRegistry {
		return NewSessionRegistry()
	})
}

func TestUserRepository_ReturnsCopies(t *testing.T) {
	repo := NewUserRepository()
	u := repotest.NewUser("jane@x.com")
	require.NoError(t, repo.Create(context.Background(), u))

	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	got.Role = "admin"

	again, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "student", again.Role)
}

func TestUserRepository_DeleteFreesEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	u := repotest.NewUser("jane@x.com")
	require.NoError(t, repo.Create(ctx, u))

	repo.Delete(u.ID)
	require.NoError(t, repo.Create(ctx, repotest.NewUser("jane@x.com")))
}

func TestSessionRegistry_ExpiryAndPrune(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	reg := NewSessionRegistry().WithClock(func() time.Time { return now })

	s := repotest.NewSession("u-1", time.Hour)
	require.NoError(t, reg.Register(ctx, s))
	assert.Equal(t, 0, reg.Prune())

	now = now.Add(2 * time.Hour)
	ok, err := reg.IsValid(ctx, s.TokenHash)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, reg.Prune())
	assert.Equal(t, 0, reg.Len())
}
