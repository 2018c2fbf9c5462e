package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository/repotest"
)

func setupTestRedis(t *testing.T) (*SessionRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionRegistry(client), mr
}

func TestSessionRegistry_Contract(t *testing.T) {
	repotest.RunSessionRegistry(t, func(t *testing.T) repository.SessionRegistry {
		reg, _ := setupTestRedis(t)
		return reg
	})
}

func TestSessionRegistry_Register_SetsTTL(t *testing.T) {
	reg, mr := setupTestRedis(t)
	s := repotest.NewSession("u-1", time.Hour)

	require.NoError(t, reg.Register(context.Background(), s))

	key := sessionKey(s.TokenHash)
	require.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.Greater(t, ttl, 58*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	members, err := mr.Members(userSessionsKey("u-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{s.TokenHash}, members)
	assert.Greater(t, mr.TTL(userSessionsKey("u-1")), time.Duration(0))
}

func TestSessionRegistry_EvictedAfterTTL(t *testing.T) {
	reg, mr := setupTestRedis(t)
	ctx := context.Background()
	s := repotest.NewSession("u-1", time.Hour)
	require.NoError(t, reg.Register(ctx, s))

	mr.FastForward(61 * time.Minute)

	ok, err := reg.IsValid(ctx, s.TokenHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionRegistry_Revoke_RemovesIndexEntry(t *testing.T) {
	reg, mr := setupTestRedis(t)
	ctx := context.Background()
	a := repotest.NewSession("u-1", time.Hour)
	b := repotest.NewSession("u-1", time.Hour)
	require.NoError(t, reg.Register(ctx, a))
	require.NoError(t, reg.Register(ctx, b))

	require.NoError(t, reg.Revoke(ctx, a.TokenHash))

	assert.False(t, mr.Exists(sessionKey(a.TokenHash)))
	members, err := mr.Members(userSessionsKey("u-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{b.TokenHash}, members)
}

func TestSessionRegistry_RevokeAll_DropsIndex(t *testing.T) {
	reg, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, repotest.NewSession("u-1", time.Hour)))

	require.NoError(t, reg.RevokeAllForUser(ctx, "u-1"))
	assert.False(t, mr.Exists(userSessionsKey("u-1")))
}

func TestSessionRegistry_StoresNoRawToken(t *testing.T) {
	reg, mr := setupTestRedis(t)
	s := repotest.NewSession("u-1", time.Hour)
	require.NoError(t, reg.Register(context.Background(), s))

	val, err := mr.Get(sessionKey(s.TokenHash))
	require.NoError(t, err)
	assert.NotContains(t, val, "token-"+s.ID)
	assert.NotContains(t, val, s.TokenHash)
	assert.Contains(t, val, `"userId":"u-1"`)
}

func TestSessionRegistry_ConnectionError(t *testing.T) {
	reg, mr := setupTestRedis(t)
	mr.Close()

	_, err := reg.IsValid(context.Background(), domain.HashToken("x"))
	assert.Error(t, err)
}
