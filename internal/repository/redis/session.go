package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/database"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

// SessionRegistry implements repository.SessionRegistry using Redis. Each
// session is a key that expires with the refresh token, so Redis evicts
// stale entries on its own. A per-user set indexes the keys for bulk
// revocation.
type SessionRegistry struct {
	client *redis.Client
	now    func() time.Time
}

// NewSessionRegistry creates a new Redis-backed session registry.
func NewSessionRegistry(client *redis.Client) *SessionRegistry {
	return &SessionRegistry{client: client, now: time.Now}
}

func sessionKey(tokenHash string) string { return sessionKeyPrefix + tokenHash }

func userSessionsKey(userID string) string { return userSessionKeyPrefix + userID }

// Register stores the session with a TTL equal to its remaining lifetime.
// An already expired session is not stored.
func (r *SessionRegistry) Register(ctx context.Context, s *domain.Session) (err error) {
	ctx, end := database.TraceStoreOp(ctx, database.SystemRedis, "RegisterSession", "SET session:* PX; SADD user_sessions:*")
	defer func() { end(err) }()

	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	setKey := userSessionsKey(s.UserID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(s.TokenHash), data, ttl)
		pipe.SAdd(ctx, setKey, s.TokenHash)
		// Sessions share one lifetime, so the newest entry outlives the rest.
		pipe.Expire(ctx, setKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis register session: %w", err)
	}
	return nil
}

// IsValid reports whether the session key still exists and is active.
func (r *SessionRegistry) IsValid(ctx context.Context, tokenHash string) (ok bool, err error) {
	ctx, end := database.TraceStoreOp(ctx, database.SystemRedis, "IsSessionValid", "GET session:*")
	defer func() { end(err) }()

	s, err := r.get(ctx, tokenHash)
	if err != nil || s == nil {
		return false, err
	}
	return s.Active(r.now()), nil
}

// Revoke deletes the session key. Unknown hashes are ignored.
func (r *SessionRegistry) Revoke(ctx context.Context, tokenHash string) (err error) {
	ctx, end := database.TraceStoreOp(ctx, database.SystemRedis, "RevokeSession", "DEL session:*; SREM user_sessions:*")
	defer func() { end(err) }()

	s, err := r.get(ctx, tokenHash)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(tokenHash))
		if s != nil {
			pipe.SRem(ctx, userSessionsKey(s.UserID), tokenHash)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser deletes every session key indexed under userID.
func (r *SessionRegistry) RevokeAllForUser(ctx context.Context, userID string) (err error) {
	ctx, end := database.TraceStoreOp(ctx, database.SystemRedis, "RevokeUserSessions", "SMEMBERS user_sessions:*; DEL")
	defer func() { end(err) }()

	setKey := userSessionsKey(userID)
	hashes, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("redis list user sessions: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
	}
	keys = append(keys, setKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis revoke user sessions: %w", err)
	}
	return nil
}

// get returns nil, nil when the key is absent.
func (r *SessionRegistry) get(ctx context.Context, tokenHash string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	s.TokenHash = tokenHash
	return &s, nil
}
