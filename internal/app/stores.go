package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Mukulsharnagat01/Collegedunia/internal/config"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository/memory"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository/postgres"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository/redis"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository/sqlite"
)

// pruneFunc purges expired sessions and reports how many were removed.
type pruneFunc func(ctx context.Context) (int64, error)

// selectUserStore returns the credential store for kind. The backing
// connection must already be open.
func selectUserStore(kind string, pool *pgxpool.Pool, db *sql.DB) repository.UserRepository {
	switch kind {
	case config.StorePostgres:
		return postgres.NewUserRepository(pool)
	case config.StoreSQLite:
		return sqlite.NewUserRepository(db)
	default:
		return memory.NewUserRepository()
	}
}

// selectSessionStore returns the session registry for kind and, for stores
// without native expiry, a function that purges expired entries.
func selectSessionStore(kind string, pool *pgxpool.Pool, db *sql.DB, client *goredis.Client) (repository.SessionRegistry, pruneFunc) {
	switch kind {
	case config.StorePostgres:
		reg := postgres.NewSessionRegistry(pool)
		return reg, func(ctx context.Context) (int64, error) {
			return reg.DeleteExpired(ctx, time.Now())
		}
	case config.StoreSQLite:
		reg := sqlite.NewSessionRegistry(db)
		return reg, func(ctx context.Context) (int64, error) {
			return reg.DeleteExpired(ctx, time.Now())
		}
	case config.StoreRedis:
		// Keys carry a TTL; Redis evicts them itself.
		return redis.NewSessionRegistry(client), nil
	default:
		reg := memory.NewSessionRegistry()
		return reg, func(context.Context) (int64, error) {
			return int64(reg.Prune()), nil
		}
	}
}
